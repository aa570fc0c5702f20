package mdns

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	mdnserrors "github.com/linklocal/mdns/internal/errors"
)

// ServiceInfo is the advertisable/discoverable unit: a DNS-SD service
// instance with its address, port, weight, priority, target host and TXT
// properties. The same type is used both to register a service and to
// receive a resolved result back from Browser/Resolver.
type ServiceInfo struct {
	mu sync.Mutex

	serviceType  string
	instanceName string
	server       string
	addr         net.IP
	port         uint16
	weight       uint16
	priority     uint16
	properties   map[string]string
	text         []byte

	// Resolution state, used only while a Request is in flight.
	reqNode *Node
	gotSRV  bool
	gotTXT  bool
	gotA    bool
}

// NewServiceInfo builds a ServiceInfo for registration. instanceName must
// end with serviceType (RFC 6763 §4's service instance naming
// convention); server defaults to instanceName when empty.
func NewServiceInfo(serviceType, instanceName string, addr net.IP, port uint16, server string) (*ServiceInfo, error) {
	if !strings.HasSuffix(strings.ToLower(instanceName), strings.ToLower(serviceType)) {
		return nil, &mdnserrors.ValidationError{
			Field:   "instanceName",
			Value:   instanceName,
			Message: fmt.Sprintf("instance name must end with service type %q", serviceType),
		}
	}
	if server == "" {
		server = instanceName
	}

	v4 := addr
	if v4 != nil {
		if asV4 := addr.To4(); asV4 != nil {
			v4 = asV4
		}
	}

	return &ServiceInfo{
		serviceType:  serviceType,
		instanceName: instanceName,
		server:       server,
		addr:         v4,
		port:         port,
		properties:   make(map[string]string),
		text:         []byte{0},
	}, nil
}

// Type returns the service type, e.g. "_http._tcp.local.".
func (s *ServiceInfo) Type() string { return s.serviceType }

// Name returns the service instance name.
func (s *ServiceInfo) Name() string { return s.instanceName }

// Server returns the target hostname backing this instance's SRV record.
func (s *ServiceInfo) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

func (s *ServiceInfo) setServer(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = host
}

// Addr returns the resolved IPv4 address, or nil if unresolved.
func (s *ServiceInfo) Addr() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *ServiceInfo) setAddr(addr net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addr = addr
}

// Port returns the service port.
func (s *ServiceInfo) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Weight returns the SRV weight.
func (s *ServiceInfo) Weight() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

// Priority returns the SRV priority.
func (s *ServiceInfo) Priority() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority
}

func (s *ServiceInfo) setSRV(priority, weight, port uint16, server string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priority = priority
	s.weight = weight
	s.port = port
	s.server = server
}

// SetProperty sets one TXT property, accepting string, bool, nil or int
// values. bool and int are coerced to "true"/"false"; nil becomes "". The
// API favors bool for new callers; int is accepted only for backward
// compatibility with callers that already encode flags as 0/1.
func (s *ServiceInfo) SetProperty(key string, value interface{}) error {
	var v string
	switch tv := value.(type) {
	case string:
		v = tv
	case bool:
		v = strconv.FormatBool(tv)
	case int:
		v = strconv.FormatBool(tv != 0)
	case nil:
		v = ""
	default:
		return &mdnserrors.ValidationError{
			Field:   "property:" + key,
			Value:   value,
			Message: "property value must be string, bool, int or nil",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.properties == nil {
		s.properties = make(map[string]string)
	}
	s.properties[key] = v
	s.text = buildTextBlob(s.properties)
	return nil
}

// Properties returns a snapshot copy of the TXT properties map. Boolean
// values are pre-stringified to "true"/"false".
func (s *ServiceInfo) Properties() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// TextBlob returns the current TXT record payload: the canonical blob built
// from the properties map by SetProperty, or the blob last passed to
// SetTextBlob, as stored.
func (s *ServiceInfo) TextBlob() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.text) == 0 {
		return []byte{0}
	}
	out := make([]byte, len(s.text))
	copy(out, s.text)
	return out
}

// SetTextBlob replaces the TXT payload directly, re-deriving the
// properties map from it.
func (s *ServiceInfo) SetTextBlob(blob []byte) error {
	props, err := parseTextBlob(blob)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties = props
	s.text = append([]byte(nil), blob...)
	return nil
}

// buildTextBlob produces the canonical length-prefixed TXT payload for a
// properties map, in sorted key order so that two equal maps always
// produce byte-identical blobs.
func buildTextBlob(props map[string]string) []byte {
	if len(props) == 0 {
		return []byte{0}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		entry := k + "=" + props[k]
		if len(entry) > 255 {
			entry = entry[:255]
		}
		out = append(out, byte(len(entry)))
		out = append(out, entry...)
	}
	return out
}

// parseTextBlob decodes a TXT record's length-prefixed entries into a
// properties map. The first occurrence of a key wins; "true"/"false"
// values normalize to booleans (stringified), an empty value stays "" so
// that a None-valued property round-trips through build+parse unchanged,
// and an entry with no '=' becomes key→"false".
func parseTextBlob(blob []byte) (map[string]string, error) {
	props := make(map[string]string)

	pos := 0
	for pos < len(blob) {
		length := int(blob[pos])
		pos++
		if pos+length > len(blob) {
			return nil, &mdnserrors.WireFormatError{
				Operation: "parse TXT blob",
				Offset:    pos,
				Message:   "entry length exceeds remaining blob",
			}
		}
		entry := string(blob[pos : pos+length])
		pos += length

		if entry == "" {
			continue
		}

		var key, value string
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			key = entry[:idx]
			raw := entry[idx+1:]
			switch raw {
			case "true":
				value = "true"
			case "false":
				value = "false"
			case "":
				value = ""
			default:
				value = raw
			}
		} else {
			key = entry
			value = "false"
		}

		if _, exists := props[key]; !exists {
			props[key] = value
		}
	}

	return props, nil
}
