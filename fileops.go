package bptree

import (
	"bufio"
	"errors"
	"os"
	"strconv"
)

// InsertFromFile reads whitespace-separated integers from path and
// inserts one (key, rid) pair per integer. Duplicates are skipped.
// Test-only surface.
func (t *BPlusTree) InsertFromFile(path string) error {
	return t.eachInt(path, func(v int64) error {
		err := t.Insert(NewKey(v), NewRID(v))
		if errors.Is(err, ErrDuplicateKey) {
			return nil
		}
		return err
	})
}

// RemoveFromFile reads whitespace-separated integers from path and
// removes the corresponding keys one at a time. Test-only surface.
func (t *BPlusTree) RemoveFromFile(path string) error {
	return t.eachInt(path, func(v int64) error {
		return t.Remove(NewKey(v))
	})
}

func (t *BPlusTree) eachInt(path string, fn func(int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		v, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return scanner.Err()
}
