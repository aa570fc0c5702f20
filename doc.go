// Package mdns implements a peer-to-peer Multicast DNS / DNS-SD node per
// RFC 6762 and RFC 6763, for link-local service advertisement, discovery
// and resolution over UDP multicast 224.0.0.251:5353.
//
// Open a node, register services you host, and browse for services
// others host:
//
//	node, err := mdns.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer node.Close()
//
//	info, _ := mdns.NewServiceInfo("_http._tcp.local.", "My Service._http._tcp.local.", net.ParseIP("127.0.0.1"), 8080, "")
//	info.SetProperty("version", "1.0")
//	if err := node.RegisterService(info); err != nil {
//		log.Fatal(err)
//	}
//
//	node.AddServiceListener("_http._tcp.local.", myListener)
//
// There is no authoritative server: every node both asks and answers on
// the shared multicast group, and the package's concurrency model (one
// engine-owned reader, any number of senders) reflects that.
package mdns
