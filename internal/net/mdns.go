package net

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_studyboard._tcp"

const sessionTXT = "session="

// Room is a study-room server found on the local network.
type Room struct {
	Host      string
	Addr      string // host:port
	SessionID string
}

// Advertise announces a server listening on port. When sessionID is set the
// TXT record carries it so browsers can join straight away.
func Advertise(port int, sessionID string) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	info := []string{"StudyBoard"}
	if sessionID != "" {
		info = append(info, sessionTXT+sessionID)
	}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, []net.IP{firstIPv4()}, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse queries the local network for timeout and reports every room found.
func Browse(timeout time.Duration, found func(Room)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if room, ok := roomFromEntry(e); ok {
				found(room)
			}
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	return err
}

func roomFromEntry(e *mdns.ServiceEntry) (Room, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Room{}, false
	}
	room := Room{
		Host: e.Host,
		Addr: net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)),
	}
	for _, field := range e.InfoFields {
		if strings.HasPrefix(field, sessionTXT) {
			room.SessionID = strings.TrimPrefix(field, sessionTXT)
		}
	}
	return room, true
}

func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}
