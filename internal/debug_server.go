package internal

import (
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

//go:embed inspect.html
var templatesFS embed.FS

const (
	defaultPrefix = "msg:"
	maxRows       = 500
	detailLength  = 240
)

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

// PresenceInspector is the read-only view of the presence engine the debug pages use.
type PresenceInspector interface {
	Snapshot() observability.PresenceSnapshot
	Connections() []*runtime.Connection
}

type ConnectionRow struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	RemoteAddr string    `json:"remoteAddr"`
	OpenedAt   time.Time `json:"openedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type PageData struct {
	Prefix    string
	Items     []InspectRow
	Truncated bool
	Stats     observability.MonitoringStats
}

// DebugServer exposes the badger inspector and the live monitoring figures.
// It is only started when the process runs at DEBUG level.
type DebugServer struct {
	log        *slog.Logger
	db         *badger.DB
	presence   PresenceInspector
	monitoring *observability.MonitoringManager
	mapper     RowMapper
	tmpl       *template.Template
}

func NewDebugServer(log *slog.Logger, db *badger.DB, presence PresenceInspector,
	monitoring *observability.MonitoringManager, mapper RowMapper) *DebugServer {
	if mapper == nil {
		mapper = RecordMapper
	}
	return &DebugServer{
		log:        log.With("component", "debug_server"),
		db:         db,
		presence:   presence,
		monitoring: monitoring,
		mapper:     mapper,
		tmpl:       template.Must(template.ParseFS(templatesFS, "inspect.html")),
	}
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /debug/stats", d.handleStats)
	mux.HandleFunc("GET /debug/connections", d.handleConnections)
	mux.HandleFunc("GET /debug/inspect", d.handleInspect)
	return mux
}

// Server wraps Handler in an *http.Server bound to all interfaces on port.
func (d *DebugServer) Server(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (d *DebugServer) stats() observability.MonitoringStats {
	stats := d.monitoring.GetLatest()
	stats.Presence = d.presence.Snapshot()
	return stats
}

func (d *DebugServer) handleConnections(w http.ResponseWriter, _ *http.Request) {
	rows := lo.Map(d.presence.Connections(), func(c *runtime.Connection, _ int) ConnectionRow {
		return ConnectionRow{
			ID:         string(c.ID()),
			UserID:     string(c.UserID()),
			RemoteAddr: c.RemoteAddr(),
			OpenedAt:   c.OpenedAt(),
			ExpiresAt:  c.ExpiresAt(),
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].OpenedAt.Before(rows[j].OpenedAt) })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		d.log.Warn("Unable to encode connections", "error", err)
	}
}

func (d *DebugServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.stats()); err != nil {
		d.log.Warn("Unable to encode debug stats", "error", err)
	}
}

func (d *DebugServer) handleInspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}

	data := PageData{Prefix: prefix, Stats: d.stats()}
	items, truncated, err := d.scan(prefix)
	if err != nil {
		d.log.Error("Badger scan failed", "prefix", prefix, "error", err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}
	data.Items, data.Truncated = items, truncated

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		d.log.Warn("Unable to render inspect page", "error", err)
	}
}

func (d *DebugServer) scan(prefix string) ([]InspectRow, bool, error) {
	var rows []InspectRow
	truncated := false
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if len(rows) == maxRows {
				truncated = true
				return nil
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				rows = append(rows, d.mapper(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, truncated, err
}

// DefaultMapper only looks at the key: namespace is its first segment and
// message keys contribute their nanosecond timestamp and message id.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      "INDEX",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: parts[0],
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case parts[0] == "msg" && len(parts) >= 4:
		row.Type = "MESSAGE"
		if tsNano, err := strconv.ParseInt(parts[len(parts)-2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("2006-01-02 15:04:05")
		}
		row.EntityID = shortID(parts[len(parts)-1])
	case parts[0] == "member" && len(parts) == 3:
		row.Type = "MEMBERSHIP"
		row.EntityID = shortID(parts[2])
	case len(parts) >= 3 && parts[1] == "id":
		row.Type = strings.ToUpper(parts[0])
		row.EntityID = shortID(parts[2])
	case len(parts) >= 3:
		row.Detail = "-> " + string(val)
	}
	return row
}

// RecordMapper extends DefaultMapper with the decoded record body.
// Password hashes never reach the page.
func RecordMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	if row.Type != "MESSAGE" && row.Type != "USER" && row.Type != "GROUP" {
		return row
	}
	record, err := repositories.DecodeRecord(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	delete(record, "password_hash")

	fields := lo.Keys(record)
	sort.Strings(fields)
	pairs := lo.Map(fields, func(f string, _ int) string {
		return fmt.Sprintf("%s=%v", f, record[f])
	})
	row.Detail = truncate(strings.Join(pairs, " "), detailLength)
	return row
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
