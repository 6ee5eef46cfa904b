package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries() []Entry {
	return []Entry{
		{Code: "000001", Name: "平安银行", URL: "https://xueqiu.com/S/SZ000001", Signal: NewCell(1), Previous: NewCell(0), Previous2: NewCell(0)},
		{Code: "600519", Name: "贵州茅台", URL: "https://xueqiu.com/S/SH600519", Signal: NewCell(-60), Previous: NewCell(-60)},
		{Code: "600000", URL: "https://xueqiu.com/S/SH600000", Signal: NewCell(1), Previous: NewCell(2), Note: "watch"},
		{Code: "000002", URL: "https://xueqiu.com/S/SZ000002", Signal: NewCell(1), Previous: NewCell(0)},
		{Code: "688001", URL: "https://xueqiu.com/S/SH688001", Signal: NewCell(0)},
	}
}

func codes(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Code
	}
	return out
}

func TestSortEntries(t *testing.T) {
	es := entries()
	SortEntries(es)
	assert.Equal(t, []string{"600000", "000002", "000001", "688001", "600519"}, codes(es))
}

func TestReportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	path, err := WriteReport(dir, date, entries())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "signals_20240308.csv"), path)

	got, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "600000", got[0].Code)
	assert.Equal(t, date, got[0].Date)
	assert.Equal(t, "watch", got[0].Note)
	assert.Equal(t, NewCell(-60), got[4].Signal)
	assert.False(t, got[3].Previous2.Valid, "blank cells stay blank")
	assert.Equal(t, "平安银行", got[2].Name)
}

func TestCarryNotesFromPreviousReport(t *testing.T) {
	dir := t.TempDir()
	prevDate := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	_, err := WriteReport(dir, prevDate, entries())
	require.NoError(t, err)

	prev, err := ReadPreviousReport(dir, prevDate)
	require.NoError(t, err)
	es := []Entry{{Code: "600000"}, {Code: "000001"}}
	CarryNotes(es, prev)
	assert.Equal(t, "watch", es[0].PreviousNote)
	assert.Equal(t, "", es[1].PreviousNote)

	missing, err := ReadPreviousReport(dir, prevDate.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReadReportRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "signals_20240308.csv")
	require.NoError(t, os.WriteFile(p, []byte("a,b,c,d,e,f,g,h,i\n"), 0644))
	_, err := ReadReport(p)
	assert.Error(t, err)

	_, err = ReadReport(filepath.Join(dir, "other.csv"))
	assert.Error(t, err)
}

func TestReportSource(t *testing.T) {
	dir := t.TempDir()
	src := ReportSource{Dir: dir}
	_, _, err := src.Latest(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = WriteReport(dir, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), entries()[:1])
	require.NoError(t, err)
	_, err = WriteReport(dir, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), entries())
	require.NoError(t, err)

	date, es, err := src.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", date.Format("2006-01-02"))
	assert.Len(t, es, 5)

	e, err := src.Lookup(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, -60, e.Signal.Code)
	_, err = src.Lookup(context.Background(), "999999")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPublisherWithClient(client, "td", time.Hour)
	defer p.Close()
	ctx := context.Background()

	_, _, err := p.Latest(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	date := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, date, entries()))

	assert.True(t, mr.Exists("td:signals:20240308"))
	assert.Equal(t, time.Hour, mr.TTL("td:signal:600519"))
	latest, err := mr.Get("td:signals:latest")
	require.NoError(t, err)
	assert.Equal(t, "20240308", latest)

	got, es, err := p.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, date, got)
	assert.Equal(t, []string{"600000", "000002", "000001", "688001", "600519"}, codes(es))

	e, err := p.Lookup(ctx, "600000")
	require.NoError(t, err)
	assert.Equal(t, NewCell(2), e.Previous)
	assert.Equal(t, date, e.Date)

	_, err = p.Lookup(ctx, "999999")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisKeysWithoutPrefix(t *testing.T) {
	p := &RedisPublisher{}
	assert.Equal(t, "signal:600519", p.codeKey("600519"))
	p.prefix = "x"
	assert.Equal(t, "x:signals:20240308", p.dateKey("20240308"))
}
