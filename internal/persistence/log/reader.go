package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"savegrid.ai/internal/sim/orchestrator"
)

// Sessions returns the session ids that have a log directory under dir, sorted.
func Sessions(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListFiles returns the prefix-*.jsonl.zst segments of one session directory in write order.
func ListFiles(sessionDir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(sessionDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(sessionDir, name))
	}
	return out, nil
}

// ReadSteps decodes sessionID's step entries from dir/<sessionID>/ in tick order. An entry
// whose tick does not advance past the previous one starts a rewritten suffix (the session
// was resumed from an earlier snapshot), so it drops every earlier entry at or after that tick.
// An empty sessionID reads every session, one after another.
func ReadSteps(dir, sessionID string) ([]orchestrator.StepLogEntry, error) {
	if sessionID == "" {
		ids, err := Sessions(dir)
		if err != nil {
			return nil, err
		}
		var out []orchestrator.StepLogEntry
		for _, id := range ids {
			entries, err := ReadSteps(dir, id)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		}
		return out, nil
	}

	files, err := ListFiles(filepath.Join(dir, sessionID), "steps")
	if err != nil {
		return nil, err
	}
	var out []orchestrator.StepLogEntry
	for _, path := range files {
		err := scanFile(path, func(line []byte) error {
			var e orchestrator.StepLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if n := len(out); n > 0 && e.Tick <= out[n-1].Tick {
				cut := sort.Search(n, func(i int) bool { return out[i].Tick >= e.Tick })
				out = out[:cut]
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}
