// Command udptcp-sender transmits a file to a udptcp-receiver peer over
// UDP, reliably, per spec.md §6's CLI contract. Signal handling follows
// soypat-lneto/examples/tcpclient/main.go's pattern: a goroutine watching
// os/signal closes the socket, which unblocks the run loop's in-flight
// receive instead of requiring a cooperative check inside it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/northlake-systems/udpltcp/metrics"
	"github.com/northlake-systems/udpltcp/netio"
	"github.com/northlake-systems/udpltcp/sender"
	"github.com/northlake-systems/udpltcp/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "udptcp-sender:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 6 {
		return fmt.Errorf("usage: %s <file> <peerAddr> <peerPort> <windowBytes> <localAckPort>", os.Args[0])
	}
	filePath := os.Args[1]

	if err := validate.FileReadable(filePath); err != nil {
		return err
	}
	peerIP, err := validate.IPv4(os.Args[2])
	if err != nil {
		return err
	}
	peerPort, err := validate.Port(os.Args[3])
	if err != nil {
		return err
	}
	windowCap, err := validate.WindowCapacity(os.Args[4])
	if err != nil {
		return err
	}
	localAckPort, err := validate.Port(os.Args[5])
	if err != nil {
		return err
	}

	// Validation is complete; everything from here is a taxon-2 I/O
	// failure path (spec.md §7), not an argument error.
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(localAckPort)})
	if err != nil {
		return err
	}
	waiter := netio.New(udpConn)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	m := metrics.NewTransfer("sender")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigc
		if !ok {
			return
		}
		logger.Info("signal received, closing socket", "signal", sig.String())
		udpConn.Close()
		cancel()
	}()

	peerAddr := &net.UDPAddr{IP: net.IP(peerIP[:]), Port: int(peerPort)}
	s := sender.New(sender.NewNetioConn(waiter), peerAddr, localAckPort, peerPort, f, windowCap, m, logger)

	bar := progressbar.DefaultBytes(fi.Size(), "sending")
	s.OnBytesSent = func(n int) { bar.Add(n) }

	return s.Run(ctx)
}
