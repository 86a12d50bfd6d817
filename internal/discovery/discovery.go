package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is what LAN clients browse for to find a server
const ServiceType = "_easel._tcp"

// Advertiser announces the server on the local network over mDNS
type Advertiser struct {
	server *mdns.Server
	log    *logrus.Entry
}

// NewService describes this server as an mDNS service. An empty host uses
// the OS hostname; nil ips uses the first non-loopback IPv4 address.
func NewService(instance, host string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("get hostname: %w", err)
		}
		host = h
	}
	if !strings.HasSuffix(host, ".") {
		host += "."
	}
	if instance == "" {
		instance = strings.TrimSuffix(host, ".")
	}
	if len(ips) == 0 {
		ips = []net.IP{firstIPv4()}
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", host, port, ips, []string{"Easel"})
	if err != nil {
		return nil, fmt.Errorf("create mDNS service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for this server until Shutdown
func Advertise(instance string, port int, log *logrus.Entry) (*Advertiser, error) {
	service, err := NewService(instance, "", port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mDNS server: %w", err)
	}

	log = log.WithField("component", "discovery")
	log.WithFields(logrus.Fields{
		"instance": service.Instance,
		"service":  ServiceType,
		"port":     port,
	}).Info("Advertising on local network")

	return &Advertiser{server: server, log: log}, nil
}

func (a *Advertiser) Shutdown() error {
	if err := a.server.Shutdown(); err != nil {
		return err
	}
	a.log.Info("Stopped advertising")
	return nil
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
