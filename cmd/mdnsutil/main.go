// Command mdnsutil is a minimal smoke-test CLI for the mdns package: it
// either browses for a service type or registers one, printing events to
// stdout until interrupted.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linklocal/mdns"
)

func main() {
	mode := flag.String("mode", "browse", "browse or register")
	serviceType := flag.String("type", "_http._tcp.local.", "service type to browse or register")
	name := flag.String("name", "mdnsutil", "instance name prefix when registering")
	port := flag.Int("port", 8080, "port to advertise when registering")
	addr := flag.String("addr", "127.0.0.1", "address to advertise when registering")
	flag.Parse()

	node, err := mdns.Open()
	if err != nil {
		log.Fatalf("mdnsutil: open: %v", err)
	}
	defer node.Close()

	switch *mode {
	case "browse":
		runBrowse(node, *serviceType)
	case "register":
		runRegister(node, *serviceType, *name, *addr, *port)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q (want browse or register)\n", *mode)
		os.Exit(2)
	}
}

type stdoutListener struct{}

func (stdoutListener) ServiceAdded(node *mdns.Node, serviceType, instanceName string) {
	fmt.Printf("+ %s (%s)\n", instanceName, serviceType)
	info := node.GetServiceInfo(serviceType, instanceName, 3*time.Second)
	if info == nil {
		return
	}
	fmt.Printf("    %s:%d %v\n", info.Server(), info.Port(), info.Properties())
}

func (stdoutListener) ServiceRemoved(node *mdns.Node, serviceType, instanceName string) {
	fmt.Printf("- %s (%s)\n", instanceName, serviceType)
}

func runBrowse(node *mdns.Node, serviceType string) {
	browser := node.AddServiceListener(serviceType, stdoutListener{})
	defer browser.Cancel()

	fmt.Printf("browsing %s, press ctrl-c to stop\n", serviceType)
	waitForSignal()
}

func runRegister(node *mdns.Node, serviceType, name, addr string, port int) {
	instanceName := name + "." + serviceType
	info, err := mdns.NewServiceInfo(serviceType, instanceName, net.ParseIP(addr), uint16(port), "")
	if err != nil {
		log.Fatalf("mdnsutil: build service info: %v", err)
	}
	if err := node.RegisterService(info); err != nil {
		log.Fatalf("mdnsutil: register: %v", err)
	}

	fmt.Printf("registered %s at %s:%d, press ctrl-c to withdraw\n", info.Name(), addr, port)
	waitForSignal()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
