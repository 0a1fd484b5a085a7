package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/log4go"

	"github.com/pixelbrawl/netcode/server"
)

var (
	tcpAddress = flag.String("tcp", ":10086", "tcp listen address")
	kcpAddress = flag.String("kcp", ":10087", "kcp listen address")
	webAddress = flag.String("web", ":8080", "http listen address for the /ws endpoint")
)

func main() {
	flag.Parse()

	log4go.Close()
	log4go.AddFilter("stdout", log4go.DEBUG, log4go.NewConsoleLogWriter())

	s := server.New(nil)
	if _, err := s.ListenTCP(*tcpAddress); err != nil {
		panic(err)
	}
	if _, err := s.ListenKCP(*kcpAddress); err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", s.WSHandler())
	go func() {
		if err := http.ListenAndServe(*webAddress, mux); err != nil {
			log4go.Error("[main] http listen: %v", err)
		}
	}()

	log4go.Info("[main] match server up: tcp=%s kcp=%s ws=%s", *tcpAddress, *kcpAddress, *webAddress)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)
	sig := <-sigs
	log4go.Info("[main] signal: %s, quiting...", sig.String())
	s.Stop()
}
