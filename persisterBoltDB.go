package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"geeo.io/QuadServer/quad"
)

var pointsBucket = []byte("points")

// points are replayed into the tree in batches of this size
const loadBatchSize = 1024

type boltDBPersister struct {
	db *bolt.DB
}

func newBoltDBPersister(dbfilename string) (Persister, error) {
	db, err := bolt.Open(dbfilename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pointsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltDBPersister{db: db}, nil
}

// keys are the bucket sequence, big endian, so ForEach replays points in insertion order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (p *boltDBPersister) readPointsInto(idx *PointIndex) error {
	log.Info("Loading points from file")
	return p.db.View(func(tx *bolt.Tx) error {

		bucket := tx.Bucket(pointsBucket)
		before := time.Now()
		counter := 0

		// a goroutine inserts batches into the tree while we decode the next one
		parseChannel := make(chan []quad.Point[float64])
		done := make(chan struct{})
		go func() {
			defer close(done)
			for batch := range parseChannel {
				idx._loadPoints(batch)
			}
		}()

		batch := make([]quad.Point[float64], 0, loadBatchSize)
		err := bucket.ForEach(func(id, v []byte) error {
			var point quad.Point[float64]
			if err := json.Unmarshal(v, &point); err != nil {
				return err
			}
			batch = append(batch, point)
			counter++
			if len(batch) == loadBatchSize {
				parseChannel <- batch // will wait until goroutine can accept more before continuing
				batch = make([]quad.Point[float64], 0, loadBatchSize)
			}
			return nil
		})
		if len(batch) > 0 {
			parseChannel <- batch
		}
		close(parseChannel)
		<-done

		log.Infof("BoltDB: loaded %d points in %fs", counter, time.Since(before).Seconds())
		return err
	})
}

func (p *boltDBPersister) persistPoints(points []quad.Point[float64]) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pointsBucket)
		for _, point := range points {
			id, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			// JSON will be easier to upgrade than a binary format
			b, err := json.Marshal(point)
			if err != nil {
				return err
			}
			if err := bucket.Put(itob(id), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *boltDBPersister) close() {
	p.db.Close()
}

// BackupHandleFunc outputs a bolt backup as a route !
func (p *boltDBPersister) BackupHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to backup DB")
		return
	}

	err := p.db.View(func(tx *bolt.Tx) error {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="quadserver.db"`)
		w.Header().Set("Content-Length", strconv.Itoa(int(tx.Size())))
		_, err := tx.WriteTo(w)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (p *boltDBPersister) JSONDumpHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to dump DB")
		return
	}
	dump, err := p.JSONDump()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(dump)
}

// JSONDump returns {"points":[...]} in insertion order
func (p *boltDBPersister) JSONDump() ([]byte, error) {
	log.Debug("Dumping bucket ", string(pointsBucket))
	var res bytes.Buffer
	res.WriteString(`{"points":[`)
	counter := 0
	before := time.Now()
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pointsBucket).ForEach(func(id, v []byte) error {
			if counter != 0 {
				res.WriteByte(',')
			}
			res.Write(v)
			counter++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	res.WriteString("]}")
	log.Infof("BoltDB: dumped %d rows in %fs", counter, time.Since(before).Seconds())
	return res.Bytes(), nil
}
