// Package ssdp announces the monitor on the LAN as a UPnP root device and
// serves its description document, so it shows up in network browsers the
// same way the ESP32 firmware did.
package ssdp

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gossdp "github.com/koron/go-ssdp"
	"github.com/rs/zerolog"
)

const (
	DeviceType      = "upnp:rootdevice"
	DescriptionPath = "/description.xml"

	DefaultMaxAge   = 1800
	DefaultInterval = 10 * time.Minute

	serverHeader = "Linux/1.0 UPnP/1.0 energy-monitor/1.0"
)

// Config describes the advertised device.
type Config struct {
	Name            string
	ModelName       string
	ModelNumber     string
	Manufacturer    string
	ManufacturerURL string
	// Port is where the web server serves DescriptionPath.
	Port int
	// MaxAge is the cache lifetime announced to control points, in seconds.
	MaxAge int
	// Interval between alive notifications.
	Interval time.Duration
}

type advertiser interface {
	Alive() error
	Bye() error
	Close() error
}

var advertise = func(st, usn, location, server string, maxAge int) (advertiser, error) {
	ad, err := gossdp.Advertise(st, usn, location, server, maxAge)
	if err != nil {
		return nil, err
	}
	return ad, nil
}

// Service keeps the advertisement alive and answers description requests.
type Service struct {
	cfg  Config
	udn  string
	host func() string
	log  zerolog.Logger
}

// NewService builds a service. host reports the address control points
// should use; an empty result postpones advertising.
func NewService(cfg Config, host func() string, log zerolog.Logger) *Service {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	// Derived from the name so the device keeps its identity across restarts.
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("energy-monitor/"+cfg.Name))
	return &Service{cfg: cfg, udn: "uuid:" + id.String(), host: host, log: log}
}

// UDN returns the unique device name.
func (s *Service) UDN() string {
	return s.udn
}

// USN returns the unique service name sent in notifications.
func (s *Service) USN() string {
	return s.udn + "::" + DeviceType
}

// Location returns the description URL for the given host.
func (s *Service) Location(host string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.cfg.Port)) + DescriptionPath
}

// Run advertises until ctx is done, then sends byebye. It re-advertises
// when the host address changes. Advertising failures are logged and
// retried on the next interval.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var (
		ad      advertiser
		current string
	)
	stop := func() {
		if ad == nil {
			return
		}
		if err := ad.Bye(); err != nil {
			s.log.Warn().Err(err).Msg("ssdp byebye failed")
		}
		ad.Close()
		ad = nil
	}
	defer stop()

	for {
		host := s.host()
		switch {
		case host != current:
			stop()
			current = ""
			if host == "" {
				s.log.Debug().Msg("no address yet, not advertising")
				break
			}
			var err error
			if ad, err = s.start(host); err != nil {
				s.log.Warn().Err(err).Msg("ssdp advertise failed")
				break
			}
			current = host
		case ad != nil:
			if err := ad.Alive(); err != nil {
				s.log.Warn().Err(err).Msg("ssdp alive failed")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) start(host string) (advertiser, error) {
	loc := s.Location(host)
	ad, err := advertise(DeviceType, s.USN(), loc, serverHeader, s.cfg.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", loc, err)
	}
	if err := ad.Alive(); err != nil {
		s.log.Warn().Err(err).Msg("ssdp alive failed")
	}
	s.log.Info().Str("location", loc).Str("usn", s.USN()).Msg("advertising")
	return ad, nil
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type device struct {
	DeviceType      string `xml:"deviceType"`
	FriendlyName    string `xml:"friendlyName"`
	PresentationURL string `xml:"presentationURL"`
	SerialNumber    string `xml:"serialNumber"`
	ModelName       string `xml:"modelName"`
	ModelNumber     string `xml:"modelNumber,omitempty"`
	Manufacturer    string `xml:"manufacturer"`
	ManufacturerURL string `xml:"manufacturerURL,omitempty"`
	UDN             string `xml:"UDN"`
}

type description struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion specVersion `xml:"specVersion"`
	URLBase     string      `xml:"URLBase"`
	Device      device      `xml:"device"`
}

func (s *Service) description(base string) description {
	serial := strings.ReplaceAll(strings.TrimPrefix(s.udn, "uuid:"), "-", "")[:12]
	return description{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		URLBase:     base,
		Device: device{
			DeviceType:      DeviceType,
			FriendlyName:    s.cfg.Name,
			PresentationURL: "/",
			SerialNumber:    serial,
			ModelName:       s.cfg.ModelName,
			ModelNumber:     s.cfg.ModelNumber,
			Manufacturer:    s.cfg.Manufacturer,
			ManufacturerURL: s.cfg.ManufacturerURL,
			UDN:             s.udn,
		},
	}
}

// ServeHTTP writes the device description.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := xml.MarshalIndent(s.description("http://"+r.Host+"/"), "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(body)
}
