package service

import (
	"errors"
	"strings"
	"time"

	"github.com/opsimate/opsimate-core/internal/alert"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("service not found")
	ErrInvalid  = errors.New("invalid service")
)

// Service status values reported by providers.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// Service type values.
const (
	TypeManual     = "MANUAL"
	TypeDocker     = "DOCKER"
	TypeSystemd    = "SYSTEMD"
	TypeKubernetes = "KUBERNETES"
)

// defaultTagColor is used when a tag is created without a colour.
const defaultTagColor = "#6b7280"

// Tag labels services. Alerts attach to services through tag names.
type Tag struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Color string `json:"color" db:"color"`
}

// Service is a monitored workload on a provider.
type Service struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	ServiceIP          string    `json:"serviceIP,omitempty"`
	ServiceStatus      string    `json:"serviceStatus"`
	ServiceType        string    `json:"serviceType"`
	ProviderName       string    `json:"providerName,omitempty"`
	ProviderType       string    `json:"providerType,omitempty"`
	ContainerNamespace string    `json:"containerNamespace,omitempty"`
	Tags               []Tag     `json:"tags"`
	CreatedAt          time.Time `json:"createdAt"`

	// Populated by AttachAlerts.
	AlertsCount int           `json:"alertsCount"`
	Alerts      []alert.Alert `json:"serviceAlerts,omitempty"`
}

// HasTag reports whether the service carries a tag with the given name.
func (s *Service) HasTag(name string) bool {
	for _, t := range s.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Validate checks the fields required to store a service.
func (s *Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.Join(ErrInvalid, errors.New("name is required"))
	}
	return nil
}

// AttachAlerts returns copies of services with Alerts and AlertsCount set.
//
// A service receives every alert whose tag equals any of its tag names,
// each alert at most once. Dismissed alerts are included in Alerts but
// excluded from AlertsCount.
func AttachAlerts(services []Service, alerts []alert.Alert) []Service {
	out := make([]Service, len(services))
	for i, svc := range services {
		seen := make(map[string]struct{})
		var matched []alert.Alert
		active := 0

		for _, a := range alerts {
			if !svc.HasTag(a.Tag) {
				continue
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			matched = append(matched, a)
			if !a.IsDismissed {
				active++
			}
		}

		svc.Alerts = matched
		svc.AlertsCount = active
		out[i] = svc
	}
	return out
}
