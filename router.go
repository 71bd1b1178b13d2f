package notifier

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RouteEntry describes how one event kind is delivered.
type RouteEntry struct {
	Channels   []Channel `yaml:"channels"`
	TemplateID string    `yaml:"template_id,omitempty"`
	Severity   string    `yaml:"severity,omitempty"`
}

// RoutingTable is the immutable kind-to-channel mapping, loaded once at
// startup. A kind without an entry routes nowhere; that is logged, not an
// error, so optional kinds can be removed from a loaded table safely.
type RoutingTable struct {
	Version string                  `yaml:"version"`
	Routes  map[EventKind]RouteEntry `yaml:"routes"`
}

// DefaultRoutingTable returns the built-in mapping: lifecycle and threshold
// events notify the lease owner by email, operational events alert the ops
// chat, and budget exhaustion plus freezes go to both.
func DefaultRoutingTable() *RoutingTable {
	return &RoutingTable{
		Version: "1",
		Routes: map[EventKind]RouteEntry{
			KindLeaseRequested:  {Channels: []Channel{ChannelEmail}, TemplateID: "lease-requested"},
			KindLeaseApproved:   {Channels: []Channel{ChannelEmail}, TemplateID: "lease-approved"},
			KindLeaseDenied:     {Channels: []Channel{ChannelEmail}, TemplateID: "lease-denied"},
			KindLeaseTerminated: {Channels: []Channel{ChannelEmail}, TemplateID: "lease-terminated"},
			KindLeaseFrozen:     {Channels: []Channel{ChannelEmail, ChannelChat}, TemplateID: "lease-frozen", Severity: "high"},
			KindLeaseUnfrozen:   {Channels: []Channel{ChannelEmail}, TemplateID: "lease-unfrozen"},
			KindLeaseExpired:    {Channels: []Channel{ChannelEmail}, TemplateID: "lease-expired"},

			KindBudgetThreshold:   {Channels: []Channel{ChannelEmail}, TemplateID: "budget-threshold"},
			KindDurationThreshold: {Channels: []Channel{ChannelEmail}, TemplateID: "duration-threshold"},
			KindFreezingThreshold: {Channels: []Channel{ChannelEmail}, TemplateID: "freezing-threshold"},
			KindBudgetExceeded:    {Channels: []Channel{ChannelEmail, ChannelChat}, TemplateID: "budget-exceeded", Severity: "critical"},

			KindAccountQuarantined:   {Channels: []Channel{ChannelChat}, Severity: "critical"},
			KindAccountCleanupFailed: {Channels: []Channel{ChannelChat}, Severity: "high"},
			KindAccountDriftDetected: {Channels: []Channel{ChannelChat}, Severity: "medium"},
		},
	}
}

// LoadRoutingTable parses a YAML routing table.
func LoadRoutingTable(data []byte) (*RoutingTable, error) {
	var table RoutingTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse routing table: %w", err)
	}
	if len(table.Routes) == 0 {
		return nil, fmt.Errorf("routing table has no routes")
	}
	for kind, entry := range table.Routes {
		for _, ch := range entry.Channels {
			if ch != ChannelEmail && ch != ChannelChat {
				return nil, fmt.Errorf("route for %s references unknown channel %q", kind, ch)
			}
		}
		if hasChannel(entry.Channels, ChannelEmail) && entry.TemplateID == "" {
			return nil, fmt.Errorf("route for %s requires a template_id for the email channel", kind)
		}
	}
	return &table, nil
}

// Router maps validated events to the channel tasks they require.
type Router struct {
	table  *RoutingTable
	logger *zap.Logger
}

// NewRouter creates a router over the given table, falling back to the
// default table when nil.
func NewRouter(table *RoutingTable, logger *zap.Logger) *Router {
	if table == nil {
		table = DefaultRoutingTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{table: table, logger: logger}
}

// Route returns one ChannelTask per required channel. The tasks carry no
// ordering or dependency between them.
func (r *Router) Route(event EnrichedEvent) []ChannelTask {
	entry, ok := r.table.Routes[event.Type]
	if !ok {
		r.logger.Info("No routing entry for event kind, dropping",
			zap.String("event_id", Sanitize(event.ID)),
			zap.String("event_type", Sanitize(string(event.Type))),
			zap.String("table_version", r.table.Version),
		)
		return nil
	}

	tasks := make([]ChannelTask, 0, len(entry.Channels))
	for _, ch := range entry.Channels {
		tasks = append(tasks, ChannelTask{
			Event:      event,
			Channel:    ch,
			TemplateID: entry.TemplateID,
			Severity:   entry.Severity,
		})
	}
	return tasks
}

// TableVersion reports the version of the loaded routing table.
func (r *Router) TableVersion() string {
	return r.table.Version
}

func hasChannel(channels []Channel, target Channel) bool {
	for _, ch := range channels {
		if ch == target {
			return true
		}
	}
	return false
}
