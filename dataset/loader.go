// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/actionrank/base"
	"github.com/gorse-io/actionrank/base/log"
	"github.com/juju/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"modernc.org/strutil"
)

// Format tells which columns a record carries.
type Format string

const (
	// FormatUIR is user, item and an optional rating or action.
	FormatUIR Format = "UIR"
	// FormatUIRT adds an optional timestamp to FormatUIR.
	FormatUIRT Format = "UIRT"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToUpper(s)); f {
	case FormatUIR, FormatUIRT:
		return f, nil
	default:
		return "", errors.Annotatef(base.ErrInvalidConfiguration, "unknown column format %q", s)
	}
}

type LoadOptions struct {
	Format Format
	// BinarizeThreshold maps values greater than it to 1 and others to 0. A
	// negative threshold keeps raw values.
	BinarizeThreshold float64
	// ActionChannels parses the third column as an action channel id and fills
	// per-channel tables. Otherwise the third column is a preference value.
	ActionChannels bool
	NumActions     int
	// TimeUnit is the granularity of the timestamp column.
	TimeUnit time.Duration
}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Format:            FormatUIR,
		BinarizeThreshold: -1,
		ActionChannels:    true,
		NumActions:        MaxActions,
		TimeUnit:          time.Second,
	}
}

// Loader ingests records from any number of sources into one dataset. Ids are
// shared across sources.
type Loader struct {
	opts       LoadOptions
	pool       *strutil.Pool
	users      *Index
	items      *Index
	preference *SparseMatrix[float64]
	timestamps *SparseMatrix[int64]
	actions    *Actions
	records    int
}

func NewLoader(opts LoadOptions) *Loader {
	if opts.TimeUnit <= 0 {
		opts.TimeUnit = time.Second
	}
	l := &Loader{
		opts:       opts,
		pool:       strutil.NewPool(),
		users:      NewIndex(),
		items:      NewIndex(),
		preference: NewSparseMatrix[float64](0, 0),
	}
	if opts.ActionChannels {
		l.actions = NewActions(opts.NumActions, 0, 0)
	}
	return l
}

type record struct {
	user      string
	item      string
	value     float64
	action    int
	timestamp int64
	hasTime   bool
}

func (l *Loader) parse(fields []string) (record, error) {
	if len(fields) < 2 {
		return record{}, errors.Errorf("expect at least 2 fields but got %d", len(fields))
	}
	r := record{user: fields[0], item: fields[1], value: 1, action: 1}
	if len(fields) > 2 {
		if l.opts.ActionChannels {
			action, err := strconv.Atoi(fields[2])
			if err != nil {
				return record{}, errors.Errorf("invalid action %q", fields[2])
			}
			r.action, r.value = action, float64(action)
		} else {
			value, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return record{}, errors.Errorf("invalid rating %q", fields[2])
			}
			r.value = value
		}
	}
	if l.opts.Format == FormatUIRT && len(fields) > 3 {
		ms, err := l.parseTimestamp(fields[3])
		if err != nil {
			return record{}, errors.Trace(err)
		}
		r.timestamp, r.hasTime = ms, true
	}
	return r, nil
}

// parseTimestamp converts an epoch count in TimeUnit to milliseconds. Counts
// written in scientific notation are truncated to whole units. Anything else
// is parsed as a date, in UTC unless it carries a zone.
func (l *Loader) parseTimestamp(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return toMillis(n, l.opts.TimeUnit), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		return toMillis(int64(f), l.opts.TimeUnit), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return 0, errors.Errorf("invalid timestamp %q", s)
	}
	return t.UnixMilli(), nil
}

// toMillis converts n units to milliseconds, saturating on overflow.
func toMillis(n int64, unit time.Duration) int64 {
	if unit < time.Millisecond {
		return n / int64(time.Millisecond/unit)
	}
	scale := int64(unit / time.Millisecond)
	switch {
	case n > math.MaxInt64/scale:
		return math.MaxInt64
	case n < math.MinInt64/scale:
		return math.MinInt64
	}
	return n * scale
}

func (l *Loader) binarize(v float64) float64 {
	if l.opts.BinarizeThreshold < 0 {
		return v
	}
	if v > l.opts.BinarizeThreshold {
		return 1
	}
	return 0
}

func (l *Loader) add(r record) {
	user := l.users.Resolve(l.pool.Align(r.user))
	item := l.items.Resolve(l.pool.Align(r.item))
	nUsers, nItems := l.users.Count(), l.items.Count()
	l.preference.Resize(nUsers, nItems)
	value := l.binarize(r.value)
	if l.actions != nil {
		l.actions.Resize(nUsers, nItems)
		l.actions.Record(r.action, user, item)
		// a zero never replaces an existing value
		if !l.preference.Contains(user, item) || value != 0 {
			l.preference.Set(user, item, value)
		}
	} else {
		l.preference.Set(user, item, value)
	}
	if r.hasTime {
		if l.timestamps == nil {
			l.timestamps = NewSparseMatrix[int64](nUsers, nItems)
		}
		l.timestamps.Resize(nUsers, nItems)
		l.timestamps.Set(user, item, r.timestamp)
	}
	l.records++
}

// scanRecords splits on \n, \r or \r\n.
func scanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// need one more byte to tell \r from \r\n
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '\t' || r == ','
}

// Read ingests one source. Parsing stops at the first malformed record and
// the error wraps base.ErrMalformedRecord. Records before it are kept.
func (l *Loader) Read(reader io.Reader, name string) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(scanRecords)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.FieldsFunc(scanner.Text(), isSeparator)
		if len(fields) == 0 {
			continue
		}
		r, err := l.parse(fields)
		if err != nil {
			return errors.Annotatef(base.ErrMalformedRecord, "%s:%d: %v", name, lineNumber, err)
		}
		l.add(r)
	}
	if err := scanner.Err(); err != nil {
		return errors.Annotatef(base.ErrMalformedRecord, "%s: %v", name, err)
	}
	return nil
}

// LoadPaths ingests every file under each path, recursing into directories.
// Paths are visited in the given order and files in lexical order.
func (l *Loader) LoadPaths(fs afero.Fs, paths ...string) error {
	var files []string
	for _, path := range paths {
		err := afero.Walk(fs, path, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, file)
			}
			return nil
		})
		if err != nil {
			return errors.Annotatef(base.ErrMalformedRecord, "%s: %v", path, err)
		}
	}
	log.Logger().Info("found data files", zap.Strings("paths", paths), zap.Int("files", len(files)))
	for _, file := range files {
		if err := l.loadFile(fs, file); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (l *Loader) loadFile(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Annotatef(base.ErrMalformedRecord, "%s: %v", path, err)
	}
	defer f.Close()
	before := l.records
	if err = l.Read(f, path); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Debug("load data file", zap.String("path", path), zap.Int("records", l.records-before))
	return nil
}

// Dataset returns what has been ingested so far. All containers share the
// final shape.
func (l *Loader) Dataset() *Dataset {
	nUsers, nItems := l.users.Count(), l.items.Count()
	l.preference.Resize(nUsers, nItems)
	if l.timestamps != nil {
		l.timestamps.Resize(nUsers, nItems)
	}
	if l.actions != nil {
		l.actions.Resize(nUsers, nItems)
	}
	return &Dataset{
		UserIndex:  l.users,
		ItemIndex:  l.items,
		Preference: l.preference,
		Timestamps: l.timestamps,
		Actions:    l.actions,
		Records:    l.records,
	}
}

// LoadDataset ingests the space separated list of paths in inputPath.
func LoadDataset(fs afero.Fs, inputPath string, opts LoadOptions) (*Dataset, error) {
	paths := strings.Fields(inputPath)
	if len(paths) == 0 {
		return nil, errors.Annotate(base.ErrInvalidConfiguration, "empty input path")
	}
	loader := NewLoader(opts)
	if err := loader.LoadPaths(fs, paths...); err != nil {
		return nil, errors.Trace(err)
	}
	d := loader.Dataset()
	log.Logger().Info("load dataset",
		zap.Int32("n_users", d.CountUsers()),
		zap.Int32("n_items", d.CountItems()),
		zap.Int("n_records", d.Records),
		zap.Int("n_entries", d.Preference.Size()))
	return d, nil
}
