package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vereinshub/stundenhub/internal/cache"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/observability"
)

// projection keeps directory responses down to the identity fields we read.
var projection = []string{"Vorname", "Nachname", "Email", "Familie", "Geburtsdatum", "Pflichtstunden"}

// Client reads member identity data from the club's record directory
// (Teable-style REST: bearer token, table records with a fields map).
// The directory is the source of truth for who exists; this service never
// writes to it.
type Client struct {
	baseURL string
	token   string
	tableID string

	httpc *http.Client
	cache *cache.TTL[[]member.Profile]
	prom  *observability.Prom
	log   *slog.Logger
}

type Options struct {
	BaseURL  string
	Token    string
	TableID  string
	CacheTTL time.Duration
	Timeout  time.Duration
	Prom     *observability.Prom
	Logger   *slog.Logger
}

func New(opts Options) *Client {
	timeout := opts.Timeout

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log := opts.Logger

	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		tableID: opts.TableID,
		httpc:   &http.Client{Timeout: timeout},
		cache:   cache.New[[]member.Profile](opts.CacheTTL),
		prom:    opts.Prom,
		log:     log,
	}
}

func (c *Client) count(op, outcome string) {
	if c.prom != nil {
		c.prom.DirectoryRequests.WithLabelValues(op, outcome).Inc()
	}
}

type record struct {
	ID     string `json:"id"`
	Fields fields `json:"fields"`
}

type fields struct {
	Vorname        string          `json:"Vorname"`
	Nachname       string          `json:"Nachname"`
	Email          string          `json:"Email"`
	Familie        json.RawMessage `json:"Familie"`
	Geburtsdatum   string          `json:"Geburtsdatum"`
	Pflichtstunden *float64        `json:"Pflichtstunden"`
}

type recordList struct {
	Records []record `json:"records"`
}

func (r record) toProfile() member.Profile {
	p := member.Profile{
		ID:        r.ID,
		FirstName: r.Fields.Vorname,
		LastName:  r.Fields.Nachname,
		Email:     r.Fields.Email,
		FamilyID:  rawToString(r.Fields.Familie),
	}

	if bd := strings.TrimSpace(r.Fields.Geburtsdatum); bd != "" {
		p.BirthDate = &bd
	}

	p.RequiredHoursPerYear = r.Fields.Pflichtstunden

	return p
}

// the family column is a string in some bases and a number in others
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string

	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n int64

	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%d", n)
	}

	return ""
}

// Resolve returns every profile registered under the email, case-insensitive.
// Zero profiles is ErrNoSuchProfile; transport faults and directory 5xx
// become ErrDirectoryUnavailable after one retry.
func (c *Client) Resolve(ctx context.Context, email string) ([]member.Profile, error) {
	lower := strings.ToLower(strings.TrimSpace(email))

	if cached, ok := c.cache.Get("email:" + lower); ok {
		return cached, nil
	}

	list, err := c.queryRecords(ctx, filterIs("Email", lower))

	if err != nil {
		c.count("resolve", "error")
		return nil, err
	}

	profiles := make([]member.Profile, 0, len(list.Records))

	for _, rec := range list.Records {
		// the directory's filter is case sensitive on some deployments
		if strings.ToLower(rec.Fields.Email) != lower {
			continue
		}

		profiles = append(profiles, rec.toProfile())
	}

	if len(profiles) == 0 {
		c.count("resolve", "no_match")
		return nil, member.ErrNoSuchProfile
	}

	c.count("resolve", "ok")
	c.cache.Set("email:"+lower, profiles)

	return profiles, nil
}

// MemberByID fetches a single profile by its directory record id.
func (c *Client) MemberByID(ctx context.Context, id string) (member.Profile, error) {
	if cached, ok := c.cache.Get("id:" + id); ok && len(cached) == 1 {
		return cached[0], nil
	}

	endpoint := fmt.Sprintf("%s/table/%s/record/%s", c.baseURL, c.tableID, url.PathEscape(id))

	body, status, err := c.get(ctx, endpoint)

	if err != nil {
		c.count("member_by_id", "error")
		return member.Profile{}, err
	}

	if status == http.StatusNotFound {
		c.count("member_by_id", "not_found")
		return member.Profile{}, member.ErrProfileNotFound
	}

	var rec record

	if err := json.Unmarshal(body, &rec); err != nil {
		c.count("member_by_id", "error")
		return member.Profile{}, fmt.Errorf("decode directory record: %w", err)
	}

	if rec.ID == "" {
		c.count("member_by_id", "not_found")
		return member.Profile{}, member.ErrProfileNotFound
	}

	c.count("member_by_id", "ok")

	p := rec.toProfile()
	c.cache.Set("id:"+id, []member.Profile{p})

	return p, nil
}

// FamilyOf returns the family unit the profile belongs to. A profile without
// a recorded family gets a synthetic unit containing only itself.
func (c *Client) FamilyOf(ctx context.Context, p member.Profile) (member.FamilyUnit, error) {
	if p.FamilyID == "" {
		return member.FamilyUnit{ID: "solo:" + p.ID, Members: []member.Profile{p}}, nil
	}

	if cached, ok := c.cache.Get("family:" + p.FamilyID); ok {
		return member.FamilyUnit{ID: p.FamilyID, Members: cached}, nil
	}

	list, err := c.queryRecords(ctx, filterIs("Familie", p.FamilyID))

	if err != nil {
		c.count("family_of", "error")
		return member.FamilyUnit{}, err
	}

	c.count("family_of", "ok")

	members := make([]member.Profile, 0, len(list.Records))

	for _, rec := range list.Records {
		members = append(members, rec.toProfile())
	}

	if len(members) == 0 {
		members = []member.Profile{p}
	}

	c.cache.Set("family:"+p.FamilyID, members)

	return member.FamilyUnit{ID: p.FamilyID, Members: members}, nil
}

func filterIs(field, value string) string {
	f := map[string]any{
		"conjunction": "and",
		"filterSet": []map[string]any{{
			"fieldId":  field,
			"operator": "is",
			"value":    value,
		}},
	}

	b, _ := json.Marshal(f)

	return string(b)
}

func (c *Client) queryRecords(ctx context.Context, filter string) (recordList, error) {
	q := url.Values{}
	q.Set("filter", filter)

	for _, field := range projection {
		q.Add("projection[]", field)
	}

	endpoint := fmt.Sprintf("%s/table/%s/record?%s", c.baseURL, c.tableID, q.Encode())

	body, status, err := c.get(ctx, endpoint)

	if err != nil {
		return recordList{}, err
	}

	if status == http.StatusNotFound {
		return recordList{}, nil
	}

	var list recordList

	if err := json.Unmarshal(body, &list); err != nil {
		return recordList{}, fmt.Errorf("decode directory records: %w", err)
	}

	return list, nil
}

// get performs a bearer-authenticated GET with exactly one retry on
// transport errors and 5xx responses. 4xx other than 404 also counts as the
// directory being unusable.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, member.ErrDirectoryUnavailable
			case <-time.After(200 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)

		if err != nil {
			return nil, 0, err
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpc.Do(req)

		if err != nil {
			lastErr = err
			c.log.Warn("directory request failed", "attempt", attempt+1, "error", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()

		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("directory responded %d", resp.StatusCode)
			c.log.Warn("directory server error", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
			c.log.Error("directory rejected request", "status", resp.StatusCode)
			return nil, resp.StatusCode, member.ErrDirectoryUnavailable
		}

		return body, resp.StatusCode, nil
	}

	c.log.Error("directory unreachable", "error", lastErr)

	return nil, 0, member.ErrDirectoryUnavailable
}
