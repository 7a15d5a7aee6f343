package infra

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const (
	hostsBlockBegin = "# BEGIN focustab managed block"
	hostsBlockEnd   = "# END focustab managed block"
	hostsRuleMarker = "# focustab id="

	// DefaultRedirectIP is where blocked domains resolve; the placeholder server listens there.
	DefaultRedirectIP = "127.0.0.1"
)

// HostsEngine implements domain.RuleEngine on top of a hosts file.
// Each rule is one tagged line resolving the domain and its "www." variant to
// the placeholder address. Lines without the tag are never touched.
// A hosts file cannot express wildcards, so other subdomains are not covered.
type HostsEngine struct {
	path       string
	redirectIP string
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewHostsEngine creates an engine managing the hosts file at path.
func NewHostsEngine(path, redirectIP string, logger *zap.Logger) *HostsEngine {
	if redirectIP == "" {
		redirectIP = DefaultRedirectIP
	}
	return &HostsEngine{path: path, redirectIP: redirectIP, logger: logger}
}

// Path returns the managed hosts file path.
func (e *HostsEngine) Path() string {
	return e.path
}

// ListInstalledRules parses every tagged line into a rule.
func (e *HostsEngine) ListInstalledRules(ctx context.Context) ([]domain.Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, managed, err := e.read()
	if err != nil {
		return nil, err
	}
	rules := make([]domain.Rule, 0, len(managed))
	for _, r := range managed {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// InstallRules appends one tagged line per rule.
func (e *HostsEngine) InstallRules(ctx context.Context, rules []domain.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	foreign, managed, err := e.read()
	if err != nil {
		return err
	}
	for _, r := range rules {
		if _, exists := managed[r.ID]; exists {
			return fmt.Errorf("rule %d already installed", r.ID)
		}
		if err := validateHostsRule(r); err != nil {
			return err
		}
		managed[r.ID] = r
	}
	return e.write(foreign, managed)
}

// validateHostsRule rejects rules that cannot be written as a single tagged line.
func validateHostsRule(r domain.Rule) error {
	if len(r.Condition.RequestDomains) == 0 {
		return fmt.Errorf("rule %d has no request domain", r.ID)
	}
	for _, d := range r.Condition.RequestDomains {
		if !domain.ValidDomain(d) {
			return fmt.Errorf("rule %d has invalid request domain %q", r.ID, d)
		}
	}
	if strings.ContainsFunc(r.Action.RedirectPath, unicode.IsSpace) {
		return fmt.Errorf("rule %d has invalid redirect path %q", r.ID, r.Action.RedirectPath)
	}
	return nil
}

// RemoveRules drops tagged lines by ID; unknown IDs are ignored.
func (e *HostsEngine) RemoveRules(ctx context.Context, ids []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	foreign, managed, err := e.read()
	if err != nil {
		return err
	}
	removed := 0
	for _, id := range ids {
		if _, ok := managed[id]; ok {
			delete(managed, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return e.write(foreign, managed)
}

// read splits the hosts file into foreign lines and managed rules.
// A missing file reads as empty.
func (e *HostsEngine) read() ([]string, map[int]domain.Rule, error) {
	managed := make(map[int]domain.Rule)

	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, managed, nil
		}
		return nil, nil, fmt.Errorf("failed to read hosts file: %w", err)
	}

	var foreign []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == hostsBlockBegin || trimmed == hostsBlockEnd {
			continue
		}
		if strings.Contains(line, hostsRuleMarker) {
			r, err := parseHostsRule(line)
			if err != nil {
				e.logger.Warn("skipping malformed managed hosts line",
					zap.String("line", line),
					zap.Error(err))
				continue
			}
			managed[r.ID] = r
			continue
		}
		foreign = append(foreign, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan hosts file: %w", err)
	}
	return foreign, managed, nil
}

// write renders foreign lines followed by the managed block.
func (e *HostsEngine) write(foreign []string, managed map[int]domain.Rule) error {
	var buf bytes.Buffer
	for _, line := range foreign {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if len(managed) > 0 {
		ids := make([]int, 0, len(managed))
		for id := range managed {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		buf.WriteString(hostsBlockBegin + "\n")
		for _, id := range ids {
			buf.WriteString(e.formatRule(managed[id]))
			buf.WriteByte('\n')
		}
		buf.WriteString(hostsBlockEnd + "\n")
	}

	return writeFileReplacing(e.path, buf.Bytes())
}

func (e *HostsEngine) formatRule(r domain.Rule) string {
	var hosts []string
	for _, d := range r.Condition.RequestDomains {
		hosts = append(hosts, d)
		if !strings.HasPrefix(d, "www.") {
			hosts = append(hosts, "www."+d)
		}
	}
	return fmt.Sprintf("%s\t%s\t%s%d priority=%d redirect=%s",
		e.redirectIP, strings.Join(hosts, " "), hostsRuleMarker, r.ID, r.Priority, r.Action.RedirectPath)
}

// parseHostsRule reverses formatRule.
func parseHostsRule(line string) (domain.Rule, error) {
	idx := strings.Index(line, hostsRuleMarker)
	entry := strings.Fields(line[:idx])
	if len(entry) < 2 {
		return domain.Rule{}, fmt.Errorf("missing host names")
	}

	r := domain.Rule{
		Action: domain.RuleAction{Type: domain.ActionRedirect},
	}
	meta := strings.Fields(strings.TrimPrefix(line[idx:], "# focustab "))
	for _, field := range meta {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "id":
			id, err := strconv.Atoi(v)
			if err != nil {
				return domain.Rule{}, fmt.Errorf("invalid rule id %q: %w", v, err)
			}
			r.ID = id
		case "priority":
			p, err := strconv.Atoi(v)
			if err != nil {
				return domain.Rule{}, fmt.Errorf("invalid priority %q: %w", v, err)
			}
			r.Priority = p
		case "redirect":
			r.Action.RedirectPath = v
		}
	}

	var domains []string
	for _, h := range entry[1:] {
		if strings.HasPrefix(h, "www.") {
			continue
		}
		domains = append(domains, h)
	}
	if len(domains) == 0 {
		domains = []string{strings.TrimPrefix(entry[1], "www.")}
	}
	r.Condition = domain.RuleCondition{
		URLFilter:      domain.DomainURLFilter(domains[0]),
		RequestDomains: domains,
		ResourceTypes:  []domain.ResourceType{domain.ResourceMainFrame},
	}
	return r, nil
}

// writeFileReplacing writes atomically via rename, falling back to an
// in-place write where the file cannot be replaced (bind-mounted hosts files).
func writeFileReplacing(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".focustab-hosts-*")
	if err == nil {
		tmpPath := tmp.Name()
		_, werr := tmp.Write(data)
		cerr := tmp.Close()
		if werr == nil && cerr == nil {
			if err := os.Chmod(tmpPath, mode); err == nil {
				if err := os.Rename(tmpPath, path); err == nil {
					return nil
				}
			}
		}
		os.Remove(tmpPath)
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write hosts file: %w", err)
	}
	return nil
}

// Ensure HostsEngine implements domain.RuleEngine.
var _ domain.RuleEngine = (*HostsEngine)(nil)
