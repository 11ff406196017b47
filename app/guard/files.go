package guard

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"

	"github.com/wamod/wa-guard/lib/antispam"
)

// Reload re-reads all configured files and applies them to the engines.
// Partial failures are aggregated, the successfully loaded files still apply.
func (g *Guard) Reload() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	var result *multierror.Error

	if g.params.PatternsFile != "" {
		if err := g.loadPatterns(g.params.PatternsFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("patterns: %w", err))
		}
	}
	if g.params.KeywordsFile != "" {
		if err := g.loadKeywords(g.params.KeywordsFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("keywords: %w", err))
		}
	}
	if g.params.MaliciousDomainsFile != "" {
		if err := g.loadMaliciousDomains(g.params.MaliciousDomainsFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("malicious domains: %w", err))
		}
	}
	if g.params.SafeDomainsFile != "" {
		if err := g.loadSafeDomains(g.params.SafeDomainsFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("safe domains: %w", err))
		}
	}
	if g.params.RulesFile != "" {
		if err := g.loadRules(g.params.RulesFile); err != nil {
			result = multierror.Append(result, fmt.Errorf("rules: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// loadPatterns compiles the pattern file into a single registry rule, replaced
// in place on each reload.
func (g *Guard) loadPatterns(path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	patterns := make([]*regexp.Regexp, 0, len(lines))
	for _, line := range lines {
		re, cerr := regexp.Compile(line)
		if cerr != nil {
			return fmt.Errorf("can't compile pattern %q: %w", line, cerr)
		}
		patterns = append(patterns, re)
	}
	g.spam.AddRule(antispam.Rule{ID: "file_patterns", Name: "File Patterns", Kind: antispam.KindPattern,
		Enabled: true, Action: antispam.ActionWarn, Pattern: &antispam.PatternParams{Patterns: patterns}})
	log.Printf("[DEBUG] loaded %d spam patterns from %s", len(patterns), path)
	return nil
}

// loadKeywords merges file keywords into the filter policy on top of the
// static ones from Params.
func (g *Guard) loadKeywords(path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	params := g.params.Filter
	params.SensitiveKeywords = append(append([]string{}, params.SensitiveKeywords...), lines...)
	g.filter.UpdateParams(params)
	log.Printf("[DEBUG] loaded %d sensitive keywords from %s", len(lines), path)
	return nil
}

// loadMaliciousDomains replaces the file-sourced slice of the scanner's
// malicious set. Domains from Params and runtime additions are kept.
func (g *Guard) loadMaliciousDomains(path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	for _, d := range g.fileDomains {
		g.scanner.RemoveMaliciousDomain(d)
	}
	for _, d := range lines {
		g.scanner.AddMaliciousDomain(d)
	}
	g.fileDomains = lines
	log.Printf("[DEBUG] loaded %d malicious domains from %s", len(lines), path)
	return nil
}

// loadSafeDomains replaces the file-sourced slice of the scanner's trusted
// set.
func (g *Guard) loadSafeDomains(path string) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	for _, d := range g.fileSafeDomains {
		g.scanner.RemoveSafeDomain(d)
	}
	for _, d := range lines {
		g.scanner.AddSafeDomain(d)
	}
	g.fileSafeDomains = lines
	log.Printf("[DEBUG] loaded %d safe domains from %s", len(lines), path)
	return nil
}

// Watch blocks watching all configured files for changes and reloads on every
// write. It returns when the context is canceled.
func (g *Guard) Watch(ctx context.Context) {
	files := []string{}
	for _, f := range []string{g.params.PatternsFile, g.params.KeywordsFile,
		g.params.MaliciousDomainsFile, g.params.SafeDomainsFile, g.params.RulesFile} {
		if f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.watchFile(ctx, file); err != nil {
				log.Printf("[WARN] failed to watch file %s: %v", file, err)
			}
		}()
	}
	wg.Wait()
}

// watchFile watches a single file and triggers a full reload on writes.
func (g *Guard) watchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	done := make(chan bool)
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[INFO] stopping watcher for %s, %v", path, ctx.Err())
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					if e := g.Reload(); e != nil {
						log.Printf("[WARN] failed to reload after change of %s: %v", path, e)
						continue
					}
					log.Printf("[INFO] reloaded config after change of %s", path)
				}
			case e, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] watcher error: %v", e)
			}
		}
	}()

	if err = watcher.Add(path); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", path, err)
	}
	<-done
	return nil
}

// readLines reads a line-per-entry file, skipping blanks and # comments.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path) //nolint gosec // path is controlled by the app
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	res := []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res = append(res, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return res, nil
}
