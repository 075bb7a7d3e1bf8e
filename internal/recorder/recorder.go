// Package recorder keeps a flight log in BoltDB: every position report,
// position broadcast and command seen by a node, grouped by flight session.
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/util"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	sessionsBucket = []byte("sessions")
	metaKey        = []byte("meta")
	entriesBucket  = []byte("entries")
)

// ErrNoSession is returned when a session id is not in the log.
var ErrNoSession = errors.New("no such session")

// Entry is one recorded event.
type Entry struct {
	Time     time.Time      `json:"time"`
	Observer model.NodeID   `json:"observer"`
	Source   model.NodeID   `json:"source"`
	Target   model.NodeID   `json:"target"`
	Kind     string         `json:"kind"`
	Command  string         `json:"command,omitempty"`
	Position model.Position `json:"position"`
}

// Session describes one recorded flight.
type Session struct {
	ID      string       `json:"id"`
	Node    model.NodeID `json:"node"`
	Started time.Time    `json:"started"`
	Entries int          `json:"entries"`
}

type flushReq struct{ done chan struct{} }

// Recorder appends entries to the current session from a background writer.
type Recorder struct {
	db      *bbolt.DB
	session Session
	now     func() time.Time

	queue   chan any
	wg      sync.WaitGroup
	closeMu sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int
}

// Open opens (or creates) the log at path and starts a new session for node.
func Open(path string, node model.NodeID) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[recorder] failed to create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[recorder] failed to open BoltDB: %w", err)
	}
	r := &Recorder{
		db:    db,
		now:   time.Now,
		queue: make(chan any, 1024),
		session: Session{
			ID:      uuid.New().String(),
			Node:    node,
			Started: time.Now().UTC(),
		},
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(sessionsBucket)
		if err != nil {
			return err
		}
		b, err := root.CreateBucket([]byte(r.session.ID))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucket(entriesBucket); err != nil {
			return err
		}
		meta, _ := json.Marshal(r.session)
		return b.Put(metaKey, meta)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[recorder] failed to create session: %w", err)
	}
	r.wg.Add(1)
	go r.writeLoop()
	util.Info("[recorder] session %s for node %s in %s", r.session.ID, node, path)
	return r, nil
}

// SessionID returns the id of the session being recorded.
func (r *Recorder) SessionID() string { return r.session.ID }

// SetClock replaces the timestamp source, e.g. with the simulation clock.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// Record queues e. When the writer falls behind the entry is dropped and counted.
func (r *Recorder) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped++
	}
}

// Dropped returns the number of entries lost to a full queue.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Tap returns a frame observer for radio.Transport.RegisterCallback.
// Frames that do not decode are ignored; the role logs those.
func (r *Recorder) Tap(observer model.NodeID) func([]byte) {
	return func(frame []byte) {
		p, err := parser.Decode(frame, nil)
		if err != nil {
			return
		}
		e := Entry{Observer: observer, Source: p.Source, Target: p.Target, Kind: p.Kind.String()}
		if p.Kind == parser.KindCommand {
			e.Command = p.Command.String()
		} else {
			e.Position = p.Position
		}
		r.Record(e)
	}
}

// Flush blocks until every queued entry is written.
func (r *Recorder) Flush() {
	done := make(chan struct{})
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue <- flushReq{done: done}
	r.mu.Unlock()
	<-done
}

// Current flushes and returns the entries of the session being recorded.
func (r *Recorder) Current() ([]Entry, error) {
	r.Flush()
	return Entries(r.db, r.session.ID)
}

// Close writes what is queued and closes the database.
func (r *Recorder) Close() error {
	var err error
	r.closeMu.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
		err = r.db.Close()
	})
	return err
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	var batch []Entry
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case item, ok := <-r.queue:
			if !ok {
				r.write(batch)
				return
			}
			switch v := item.(type) {
			case Entry:
				batch = append(batch, v)
				if len(batch) >= 256 {
					r.write(batch)
					batch = batch[:0]
				}
			case flushReq:
				r.write(batch)
				batch = batch[:0]
				close(v.done)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.write(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) write(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket).Bucket([]byte(r.session.ID)).Bucket(entriesBucket)
		for _, e := range batch {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			v, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(e.Time, seq), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.Error("[recorder] failed to save %d entries: %v", len(batch), err)
	}
}

// entryKey orders entries by time, then by arrival.
func entryKey(t time.Time, seq uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

// Sessions lists the sessions stored in db, oldest first.
func Sessions(db *bbolt.DB) ([]Session, error) {
	var out []Session
	err := db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		if root == nil {
			return nil
		}
		return root.ForEach(func(k, v []byte) error {
			b := root.Bucket(k)
			if b == nil {
				return nil
			}
			var s Session
			if err := json.Unmarshal(b.Get(metaKey), &s); err != nil {
				return fmt.Errorf("session %s meta: %w", k, err)
			}
			s.Entries = b.Bucket(entriesBucket).Stats().KeyN
			out = append(out, s)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out, err
}

// Entries returns the entries of one session in time order.
func Entries(db *bbolt.DB, session string) ([]Entry, error) {
	var out []Entry
	err := db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		if root == nil {
			return ErrNoSession
		}
		b := root.Bucket([]byte(session))
		if b == nil {
			return ErrNoSession
		}
		return b.Bucket(entriesBucket).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// OpenReadOnly opens a flight log for inspection.
func OpenReadOnly(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o444, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("[recorder] failed to open BoltDB: %w", err)
	}
	return db, nil
}
