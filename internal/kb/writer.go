// Package kb writes harvested pages to disk as one knowledge base per site.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mark3labs/docharvest/internal/pipeline"
	"github.com/mark3labs/docharvest/internal/stats"
)

const stampFormat = "20060102_150405"

// Options controls where and how a run is written.
type Options struct {
	OutDir string // required; parent of the knowledge base directories
	Force  bool   // write into non-empty knowledge base directories
	DryRun bool   // don't write, only plan
}

// PlannedFile describes a file the writer intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result lists what was (or would be) written.
type Result struct {
	RunID   string
	Dirs    []string // knowledge base directories, relative to OutDir
	Summary string   // overall summary file, relative to OutDir
	Planned []PlannedFile
}

// Run is the input of Write.
type Run struct {
	ID      string // generated when empty
	Sites   []pipeline.Site
	Elapsed time.Duration
}

// Writer lays out knowledge bases.
type Writer struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewWriter returns a Writer. A nil logger discards output.
func NewWriter(opts Options, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{opts: opts, log: log.Named("kb"), now: time.Now}
}

// Write renders every site with at least one record into
// knowledge_base_<domain>_<timestamp>/ under OutDir and the overall summary
// into processing_summary_<timestamp>.md.
func (w *Writer) Write(ctx context.Context, run Run) (*Result, error) {
	if strings.TrimSpace(w.opts.OutDir) == "" {
		return nil, fmt.Errorf("kb: OutDir is required")
	}
	now := w.now()
	stamp := now.Format(stampFormat)
	runID := run.ID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &Result{RunID: runID}

	files := map[string][]byte{}
	snaps := make([]stats.Snapshot, 0, len(run.Sites))
	for _, site := range run.Sites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap := site.Stats.Snapshot()
		snaps = append(snaps, snap)
		if len(site.Records) == 0 {
			w.log.Info("no documents for site", zap.String("base_url", site.BaseURL))
			continue
		}
		dir, err := renderSite(files, runID, stamp, now, site, snap)
		if err != nil {
			return nil, err
		}
		res.Dirs = append(res.Dirs, dir)
	}

	var summary bytes.Buffer
	if err := stats.WriteSummary(&summary, snaps, run.Elapsed, now); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	res.Summary = "processing_summary_" + stamp + ".md"
	files[res.Summary] = summary.Bytes()

	res.Planned = plan(files)
	if w.opts.DryRun {
		return res, nil
	}
	if err := writeFiles(w.opts.OutDir, files, res.Dirs, w.opts.Force); err != nil {
		return nil, err
	}
	for _, dir := range res.Dirs {
		w.log.Info("knowledge base saved", zap.String("dir", filepath.Join(w.opts.OutDir, dir)))
	}
	return res, nil
}

type documentMeta struct {
	URL           string               `json:"url"`
	BaseURL       string               `json:"base_url"`
	WebsitePrefix string               `json:"website_prefix"`
	Timestamp     time.Time            `json:"timestamp"`
	ContentLength int                  `json:"content_length"`
	RawLength     int                  `json:"raw_length"`
	Filename      string               `json:"filename"`
	SwaggerInfo   pipeline.SwaggerInfo `json:"swagger_info"`
	Indicators    []string             `json:"indicators,omitempty"`
	API           any                  `json:"api,omitempty"`
}

type collectionMeta struct {
	Name           string            `json:"collection_name"`
	RunID          string            `json:"run_id"`
	Domain         string            `json:"website_domain"`
	Prefix         string            `json:"website_prefix"`
	BaseURL        string            `json:"base_url"`
	CreatedAt      string            `json:"created_at"`
	TotalDocuments int               `json:"total_documents"`
	Summary        collectionSummary `json:"processing_summary"`
}

type collectionSummary struct {
	stats.Snapshot
	Processed        int                       `json:"total_urls_processed_successfully"`
	FailedCount      int                       `json:"total_urls_failed"`
	AvgContentLength int                       `json:"avg_content_length"`
	FailuresByReason map[stats.Reason][]string `json:"failures_by_reason"`
}

func renderSite(files map[string][]byte, runID, stamp string, now time.Time, site pipeline.Site, snap stats.Snapshot) (string, error) {
	domain := hostOf(site.BaseURL)
	name := siteName(domain)
	prefix := Prefix(domain)
	dir := "knowledge_base_" + name + "_" + stamp

	used := map[string]int{}
	totalLen := 0
	for i, rec := range site.Records {
		base := prefix + "-" + uniqueName(used, DocumentName(rec.URL, i))
		files[filepath.Join(dir, "documents", base+".md")] = []byte(rec.Transformed)

		meta := documentMeta{
			URL:           rec.URL,
			BaseURL:       rec.BaseURL,
			WebsitePrefix: prefix,
			Timestamp:     rec.Timestamp,
			ContentLength: len(rec.Transformed),
			RawLength:     len(rec.RawContent),
			Filename:      base + ".md",
			SwaggerInfo:   rec.SwaggerInfo,
			Indicators:    rec.Indicators,
		}
		if rec.API != nil {
			meta.API = rec.API
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode metadata for %s: %w", rec.URL, err)
		}
		files[filepath.Join(dir, "metadata", base+".json")] = data
		totalLen += len(rec.Transformed)
	}

	coll := collectionMeta{
		Name:           name + "_knowledge_base",
		RunID:          runID,
		Domain:         domain,
		Prefix:         prefix,
		BaseURL:        site.BaseURL,
		CreatedAt:      stamp,
		TotalDocuments: len(site.Records),
		Summary: collectionSummary{
			Snapshot:         snap,
			Processed:        len(site.Records),
			FailedCount:      snap.FailureCount(),
			AvgContentLength: totalLen / len(site.Records),
			FailuresByReason: snap.FailuresByReason(),
		},
	}
	data, err := json.MarshalIndent(coll, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode collection metadata: %w", err)
	}
	files[filepath.Join(dir, "collection_metadata.json")] = data

	var log bytes.Buffer
	if err := stats.WriteLog(&log, snap, now); err != nil {
		return "", fmt.Errorf("render processing log: %w", err)
	}
	files[filepath.Join(dir, "processing_log.md")] = log.Bytes()
	files[filepath.Join(dir, "README.md")] = readme(domain, prefix, now, site)
	return dir, nil
}

func readme(domain, prefix string, now time.Time, site pipeline.Site) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Knowledge Base: %s\n\n", domain)
	b.WriteString("## Collection Information\n")
	fmt.Fprintf(&b, "- **Website**: %s\n", domain)
	fmt.Fprintf(&b, "- **Base URL**: %s\n", site.BaseURL)
	fmt.Fprintf(&b, "- **File Prefix**: %s\n", prefix)
	fmt.Fprintf(&b, "- **Created**: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Total Documents**: %d\n\n", len(site.Records))
	b.WriteString("## Directory Structure\n")
	b.WriteString("- `documents/` - Processed markdown documents\n")
	b.WriteString("- `metadata/` - Per-document metadata, including API detection results\n")
	b.WriteString("- `collection_metadata.json` - Collection-level metadata and processing statistics\n")
	b.WriteString("- `processing_log.md` - Successful and failed URLs for this website\n\n")
	fmt.Fprintf(&b, "All files are prefixed with `%s-`.\n\n", prefix)
	fmt.Fprintf(&b, "## Documents (%d total)\n", len(site.Records))
	for _, rec := range site.Records {
		title := "/"
		if u, err := url.Parse(rec.URL); err == nil && u.Path != "" {
			title = u.Path
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, rec.URL)
	}
	return b.Bytes()
}

var unsafeName = regexp.MustCompile(`[^\w\-_]`)

// DocumentName derives a file name from the URL path: its segments joined by
// underscores, "index" for the root, doc_<idx> when nothing usable remains.
func DocumentName(rawURL string, idx int) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		var parts []string
		for _, p := range strings.Split(u.EscapedPath(), "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		name = "index"
		if len(parts) > 0 {
			name = strings.Join(parts, "_")
		}
	}
	name = unsafeName.ReplaceAllString(name, "_")
	if name == "" {
		name = fmt.Sprintf("doc_%03d", idx)
	}
	return name
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

// Prefix is the capitalized registrable label of a host, e.g. "Crawl4ai" for
// docs.crawl4ai.com, skipping a leading www.
func Prefix(domain string) string {
	parts := strings.Split(domain, ".")
	label := parts[0]
	if len(parts) >= 2 {
		label = parts[len(parts)-2]
		if label == "www" && len(parts) >= 3 {
			label = parts[len(parts)-3]
		}
	}
	if label == "" {
		return "Site"
	}
	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
}

func siteName(domain string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(domain)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

func plan(files map[string][]byte) []PlannedFile {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	planned := make([]PlannedFile, 0, len(keys))
	for _, k := range keys {
		planned = append(planned, PlannedFile{RelPath: k, Size: len(files[k]), Mode: 0o644})
	}
	return planned
}

func writeFiles(outDir string, files map[string][]byte, dirs []string, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	for _, dir := range dirs {
		p := filepath.Join(abs, dir)
		if st, err := os.Stat(p); err == nil && st.IsDir() && !force {
			entries, rerr := os.ReadDir(p)
			if rerr == nil && len(entries) > 0 {
				return fmt.Errorf("kb: output directory %q is not empty (use --force to overwrite)", p)
			}
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}
