package service

import "strings"

// Filter keys understood by Apply.
const (
	FilterServiceStatus      = "serviceStatus"
	FilterServiceType        = "serviceType"
	FilterProviderType       = "providerType"
	FilterProviderName       = "providerName"
	FilterContainerNamespace = "containerNamespace"
	FilterTags               = "tags"
)

// Filters maps a filter key to the values selected for it. Keys with no
// values are inactive.
type Filters map[string][]string

// Active reports whether at least one key has selected values.
func (f Filters) Active() bool {
	for _, v := range f {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// Apply returns the services that pass every active filter and contain
// the search term.
//
// Within one key the selected values are alternatives, except for tags,
// where a service must carry all of them. Across keys all must hold.
// Unknown keys match nothing. The search term is matched
// case-insensitively against name, IP, provider name and tag names.
func Apply(services []Service, filters Filters, search string) []Service {
	search = strings.ToLower(strings.TrimSpace(search))

	out := make([]Service, 0, len(services))
	for i := range services {
		svc := &services[i]
		if matchesFilters(svc, filters) && matchesSearch(svc, search) {
			out = append(out, *svc)
		}
	}
	return out
}

func matchesFilters(svc *Service, filters Filters) bool {
	for key, values := range filters {
		if len(values) == 0 {
			continue
		}
		if !matchesKey(svc, key, values) {
			return false
		}
	}
	return true
}

func matchesKey(svc *Service, key string, values []string) bool {
	switch key {
	case FilterServiceStatus:
		return contains(values, svc.ServiceStatus)
	case FilterServiceType:
		return contains(values, svc.ServiceType)
	case FilterProviderType:
		return contains(values, svc.ProviderType)
	case FilterProviderName:
		return contains(values, svc.ProviderName)
	case FilterContainerNamespace:
		return contains(values, svc.ContainerNamespace)
	case FilterTags:
		if len(svc.Tags) == 0 {
			return false
		}
		for _, v := range values {
			if !svc.HasTag(v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func matchesSearch(svc *Service, term string) bool {
	if term == "" {
		return true
	}
	fields := []string{svc.Name, svc.ServiceIP, svc.ProviderName}
	for _, t := range svc.Tags {
		fields = append(fields, t.Name)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
