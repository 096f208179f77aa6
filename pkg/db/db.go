// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package db implements a simple append-only key-value file.
// All records are cached in memory; updates are appended to the file on Flush,
// and the file is rewritten from scratch once it accumulates too many stale records.
// The fuzzer keeps per-input metadata in it, with Seq holding the input insertion order.
package db

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

type DB struct {
	Version uint64            // arbitrary user version (0 for a new database)
	Records map[string]Record // in-memory cache, must not be modified directly

	filename string
	stale    int // number of records in the file, including overwritten and deleted ones
	pending  *bytes.Buffer
}

type Record struct {
	Val []byte
	Seq uint64
}

func Open(filename string) (*DB, error) {
	db := &DB{
		filename: filename,
	}
	f, err := os.OpenFile(filename, os.O_RDONLY|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return nil, err
	}
	db.Version, db.Records, db.stale = deserializeDB(bufio.NewReader(f))
	f.Close()
	if len(db.Records) == 0 || db.needsCompaction() {
		if err := db.compact(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Save(key string, val []byte, seq uint64) {
	if seq == seqDeleted {
		panic("reserved seq")
	}
	if rec, ok := db.Records[key]; ok && seq == rec.Seq && bytes.Equal(val, rec.Val) {
		return
	}
	db.Records[key] = Record{val, seq}
	db.serialize(key, val, seq)
	db.stale++
}

func (db *DB) Delete(key string) {
	if _, ok := db.Records[key]; !ok {
		return
	}
	delete(db.Records, key)
	db.serialize(key, nil, seqDeleted)
	db.stale++
}

// Keys returns all keys ordered by Seq, then by key.
func (db *DB) Keys() []string {
	keys := make([]string, 0, len(db.Records))
	for key := range db.Records {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, sj := db.Records[keys[i]].Seq, db.Records[keys[j]].Seq
		if si != sj {
			return si < sj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (db *DB) Flush() error {
	if db.needsCompaction() {
		return db.compact()
	}
	if db.pending == nil {
		return nil
	}
	f, err := os.OpenFile(db.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(db.pending.Bytes()); err != nil {
		return err
	}
	db.pending = nil
	return nil
}

func (db *DB) BumpVersion(version uint64) error {
	if db.Version == version {
		return db.Flush()
	}
	db.Version = version
	return db.compact()
}

func (db *DB) needsCompaction() bool {
	return db.stale/10*9 > len(db.Records)
}

func (db *DB) compact() error {
	buf := new(bytes.Buffer)
	serializeHeader(buf, db.Version)
	for _, key := range db.Keys() {
		rec := db.Records[key]
		serializeRecord(buf, key, rec.Val, rec.Seq)
	}
	if err := osutil.WriteFile(db.filename, buf.Bytes()); err != nil {
		return err
	}
	db.stale = len(db.Records)
	db.pending = nil
	return nil
}

func (db *DB) serialize(key string, val []byte, seq uint64) {
	if db.pending == nil {
		db.pending = new(bytes.Buffer)
	}
	serializeRecord(db.pending, key, val, seq)
}

const (
	dbMagic    = uint32(0xf0f2db)
	recMagic   = uint32(0xf0f2ec)
	curVersion = uint32(1)
	seqDeleted = ^uint64(0)
)

func serializeHeader(w *bytes.Buffer, version uint64) {
	binary.Write(w, binary.LittleEndian, dbMagic)
	binary.Write(w, binary.LittleEndian, curVersion)
	binary.Write(w, binary.LittleEndian, version)
}

func serializeRecord(w *bytes.Buffer, key string, val []byte, seq uint64) {
	binary.Write(w, binary.LittleEndian, recMagic)
	binary.Write(w, binary.LittleEndian, uint32(len(key)))
	w.WriteString(key)
	binary.Write(w, binary.LittleEndian, seq)
	if seq == seqDeleted {
		if len(val) != 0 {
			panic("deleting record with value")
		}
		return
	}
	if len(val) == 0 {
		binary.Write(w, binary.LittleEndian, uint32(0))
		return
	}
	compressed := new(bytes.Buffer)
	fw, err := flate.NewWriter(compressed, flate.BestCompression)
	if err != nil {
		panic(err)
	}
	fw.Write(val)
	fw.Close()
	binary.Write(w, binary.LittleEndian, uint32(compressed.Len()))
	w.Write(compressed.Bytes())
}

// deserializeDB reads as many records as possible. A corrupted tail
// (e.g. after a crash in the middle of Flush) is dropped.
func deserializeDB(r *bufio.Reader) (version uint64, records map[string]Record, stale int) {
	records = make(map[string]Record)
	ver, err := deserializeHeader(r)
	if err != nil {
		log.Errorf("failed to deserialize database header: %v", err)
		return
	}
	version = ver
	for {
		key, val, seq, err := deserializeRecord(r)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Errorf("failed to deserialize database record: %v", err)
			return
		}
		stale++
		if seq == seqDeleted {
			delete(records, key)
		} else {
			records[key] = Record{val, seq}
		}
	}
}

func deserializeHeader(r *bufio.Reader) (uint64, error) {
	var magic, ver uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}
	if magic != dbMagic {
		return 0, fmt.Errorf("bad db header: 0x%x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return 0, err
	}
	if ver == 0 || ver > curVersion {
		return 0, fmt.Errorf("bad db version: %v", ver)
	}
	var userVer uint64
	if err := binary.Read(r, binary.LittleEndian, &userVer); err != nil {
		return 0, err
	}
	return userVer, nil
}

func deserializeRecord(r *bufio.Reader) (key string, val []byte, seq uint64, err error) {
	var magic uint32
	if err = binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return
	}
	if magic != recMagic {
		err = fmt.Errorf("bad record header: 0x%x", magic)
		return
	}
	var keyLen uint32
	if err = binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return
	}
	keyBuf := make([]byte, keyLen)
	if _, err = io.ReadFull(r, keyBuf); err != nil {
		return
	}
	key = string(keyBuf)
	if err = binary.Read(r, binary.LittleEndian, &seq); err != nil {
		return
	}
	if seq == seqDeleted {
		return
	}
	var valLen uint32
	if err = binary.Read(r, binary.LittleEndian, &valLen); err != nil {
		return
	}
	if valLen != 0 {
		fr := flate.NewReader(&io.LimitedReader{R: r, N: int64(valLen)})
		val, err = io.ReadAll(fr)
		fr.Close()
		if err != nil {
			return
		}
	}
	return
}

// Create creates a new database in the specified file with the specified records.
func Create(filename string, version uint64, records map[string]Record) error {
	os.Remove(filename)
	db, err := Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	if err := db.BumpVersion(version); err != nil {
		return fmt.Errorf("failed to bump database version: %w", err)
	}
	for key, rec := range records {
		db.Save(key, rec.Val, rec.Seq)
	}
	if err := db.Flush(); err != nil {
		return fmt.Errorf("failed to save database file: %w", err)
	}
	return nil
}
