// Command udptcp-receiver listens for a udptcp-sender peer and writes the
// transferred bytes to a file, per spec.md §6's CLI contract.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/northlake-systems/udpltcp/metrics"
	"github.com/northlake-systems/udpltcp/netio"
	"github.com/northlake-systems/udpltcp/receiver"
	"github.com/northlake-systems/udpltcp/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "udptcp-receiver:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 5 {
		return fmt.Errorf("usage: %s <file> <listenPort> <peerAckAddr> <peerAckPort>", os.Args[0])
	}
	filePath := os.Args[1]

	listenPort, err := validate.Port(os.Args[2])
	if err != nil {
		return err
	}
	peerAckIP, err := validate.IPv4(os.Args[3])
	if err != nil {
		return err
	}
	peerAckPort, err := validate.Port(os.Args[4])
	if err != nil {
		return err
	}

	// Validation is complete; everything from here is a taxon-2 I/O
	// failure path (spec.md §7), not an argument error.
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(listenPort)})
	if err != nil {
		return err
	}
	waiter := netio.New(udpConn)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	m := metrics.NewTransfer("receiver")

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

	peerAckAddr := &net.UDPAddr{IP: net.IP(peerAckIP[:]), Port: int(peerAckPort)}
	r := receiver.New(receiver.NewNetioConn(waiter), peerAckAddr, listenPort, peerAckPort, f, m, logger)

	return r.Run(ctx)
}
