package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/rbac"
	"calltrack/internal/reporting"
	"calltrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ListLeads returns the leads in the caller's scope, newest activity first, each with
// its latest call attached.
func (h Handlers) ListLeads(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	scope, err := rbac.ScopeTenant(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ls, err := h.Store.ListLeads(c.Request.Context(), scope)
	if err != nil {
		logger.FromGin(c).Error("lead listing failed", "tenant_id", scope, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead listing failed"})
		return
	}
	if h.Leads != nil {
		ls = h.Leads.Attach(ls)
	}
	leads.SortByLastSeen(ls)

	total := len(ls)
	if len(ls) > limit {
		ls = ls[:limit]
	}
	if ls == nil {
		ls = []leads.Lead{}
	}
	c.JSON(http.StatusOK, gin.H{"leads": ls, "total": total})
}

type callView struct {
	calls.Call
	Class          string `json:"class"`
	Label          string `json:"label,omitempty"`
	DirectionShort string `json:"direction_short"`
}

func newCallView(c calls.Call) callView {
	cls := calls.Classify(c)
	return callView{Call: c, Class: cls.String(), Label: cls.Label(), DirectionShort: calls.CompactDirection(c.Direction)}
}

type callsResponse struct {
	Calls   []callView       `json:"calls"`
	Summary reporting.Counts `json:"summary"`
	Total   int              `json:"total"`
}

// ListCalls returns the newest calls in scope that match filter and the [from, to) window.
// Summary covers every match, not just the returned page.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	scope, err := rbac.ScopeTenant(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	filter, err := calls.ParseFilter(c.Query("filter"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseTime(c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from: " + err.Error()})
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to: " + err.Error()})
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var cs []calls.Call
	if scope == "" {
		cs, err = h.Store.ListAllCalls(c.Request.Context())
	} else {
		cs, err = h.Store.ListCalls(c.Request.Context(), scope)
	}
	if err != nil {
		logger.FromGin(c).Error("call listing failed", "tenant_id", scope, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call listing failed"})
		return
	}

	matched := make([]calls.Call, 0, len(cs))
	for _, call := range cs {
		if !filter.Match(call) {
			continue
		}
		if !from.IsZero() && call.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !call.CreatedAt.Before(to) {
			continue
		}
		matched = append(matched, call)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedMillis() > matched[j].CreatedMillis() })

	out := callsResponse{Summary: reporting.Summarize(matched), Total: len(matched)}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out.Calls = make([]callView, 0, len(matched))
	for _, call := range matched {
		out.Calls = append(out.Calls, newCallView(call))
	}
	c.JSON(http.StatusOK, out)
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	if n > max {
		n = max
	}
	return n, nil
}

// parseTime accepts RFC 3339 or epoch milliseconds; empty is the zero time.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or epoch milliseconds, got %q", raw)
	}
	return t.UTC(), nil
}
