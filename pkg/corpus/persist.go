// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/forkfuzz/forkfuzz/pkg/db"
	"github.com/forkfuzz/forkfuzz/pkg/hash"
	"github.com/forkfuzz/forkfuzz/pkg/log"
	"github.com/forkfuzz/forkfuzz/pkg/osutil"
)

// DBFile is the name of the metadata database inside a corpus directory.
const DBFile = ".corpus.db"

const dbVersion = 1

// Open creates a corpus mirrored to dir: every input is stored in dir/<sha1 of the input>,
// its metadata in the DBFile database keyed by the same name with Seq equal to the input ID.
// Existing contents of dir are not loaded until Load is called.
func Open(name, dir string) (*Corpus, error) {
	if err := osutil.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("failed to create corpus dir: %w", err)
	}
	if err := osutil.IsAccessible(dir); err != nil {
		return nil, fmt.Errorf("corpus dir is not accessible: %w", err)
	}
	metaDB, err := db.Open(filepath.Join(dir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	if metaDB.Version != dbVersion {
		if err := metaDB.BumpVersion(dbVersion); err != nil {
			return nil, fmt.Errorf("failed to init corpus database: %w", err)
		}
	}
	corpus := New(name)
	corpus.dir = dir
	corpus.db = metaDB
	return corpus, nil
}

// Dir returns the backing directory, or "" for in-memory corpora.
func (corpus *Corpus) Dir() string {
	return corpus.dir
}

// Load reads inputs persisted in the corpus directory and adds them to the corpus.
// Inputs keep their IDs from the database; files without metadata are appended
// in name order. Unreadable files are skipped with a warning.
// Returns the loaded items in ID order.
func (corpus *Corpus) Load() ([]*Item, error) {
	if corpus.dir == "" {
		return nil, nil
	}
	names, err := osutil.ListDir(corpus.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus dir: %w", err)
	}
	type loaded struct {
		item  *Item
		known bool
	}
	var inputs []loaded
	for _, name := range names {
		sig, err := hash.FromString(name)
		if err != nil {
			log.Logf(1, "%v: ignoring %v: not an input file name", corpus.name, name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(corpus.dir, name))
		if err != nil {
			log.Errorf("%v: failed to read %v: %v", corpus.name, name, err)
			continue
		}
		if hash.Hash(data) != sig {
			log.Errorf("%v: %v content does not match its name, skipping", corpus.name, name)
			continue
		}
		item := &Item{Sig: sig, Data: data, Meta: Meta{Parent: -1}}
		rec, known := corpus.db.Records[name]
		if known {
			if err := json.Unmarshal(rec.Val, &item.Meta); err != nil {
				log.Errorf("%v: corrupted metadata for %v: %v", corpus.name, name, err)
				item.Meta = Meta{Parent: -1}
			}
			item.ID = int(rec.Seq)
		}
		inputs = append(inputs, loaded{item, known})
	}
	sort.SliceStable(inputs, func(i, j int) bool {
		if inputs[i].known != inputs[j].known {
			return inputs[i].known
		}
		return inputs[i].known && inputs[i].item.ID < inputs[j].item.ID
	})

	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	present := make(map[string]bool)
	var res []*Item
	for _, inp := range inputs {
		item := inp.item
		if corpus.bySig[item.Sig] != nil || (inp.known && corpus.byID[item.ID] != nil) {
			continue
		}
		if !inp.known || item.ID < corpus.nextID {
			item.ID = corpus.nextID
		}
		corpus.insert(item)
		present[item.Name()] = true
		if err := corpus.persistMeta(item); err != nil {
			log.Errorf("%v: failed to save metadata: %v", corpus.name, err)
		}
		res = append(res, item)
	}
	// Drop metadata of inputs that were removed from the directory.
	for key := range corpus.db.Records {
		if !present[key] && corpus.bySig[mustSig(key)] == nil {
			corpus.db.Delete(key)
		}
	}
	return res, corpus.flush()
}

func mustSig(name string) hash.Sig {
	sig, _ := hash.FromString(name)
	return sig
}

func (corpus *Corpus) persist(item *Item) error {
	if corpus.dir == "" {
		return nil
	}
	if err := osutil.WriteFile(filepath.Join(corpus.dir, item.Name()), item.Data); err != nil {
		return err
	}
	if err := corpus.persistMeta(item); err != nil {
		return err
	}
	return corpus.flush()
}

func (corpus *Corpus) persistMeta(item *Item) error {
	if corpus.db == nil {
		return nil
	}
	data, err := json.Marshal(item.Meta)
	if err != nil {
		return err
	}
	corpus.db.Save(item.Name(), data, uint64(item.ID))
	return nil
}

func (corpus *Corpus) unpersist(item *Item) error {
	if corpus.dir == "" {
		return nil
	}
	corpus.db.Delete(item.Name())
	if err := os.Remove(filepath.Join(corpus.dir, item.Name())); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (corpus *Corpus) flush() error {
	if corpus.db == nil {
		return nil
	}
	return corpus.db.Flush()
}
