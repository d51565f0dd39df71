package world

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	diskOpDelete byte = 0
	diskOpSet    byte = 1

	// op, cx, cz, payload size
	diskHeaderSize = 13
)

type diskRecordMeta struct {
	offset int64
	size   uint32
}

// diskStore is an append-only log of gob-encoded chunks. The index is
// rebuilt on open; later records win and delete records are tombstones.
type diskStore struct {
	file    chunkFile
	mu      sync.RWMutex
	records map[ChunkCoord]diskRecordMeta
}

// chunkFile is the part of *os.File the store uses.
type chunkFile interface {
	io.ReaderAt
	io.ReadWriteSeeker
	io.Closer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
}

// OpenDiskStore opens (or creates) the chunk log at path.
func OpenDiskStore(path string) (ChunkStore, error) {
	return openDiskStore(path)
}

func openDiskStore(path string) (*diskStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create chunk store directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	store := &diskStore{
		file:    f,
		records: make(map[ChunkCoord]diskRecordMeta),
	}
	if err := store.loadIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return store, nil
}

func encodeHeader(op byte, coord ChunkCoord, size uint32) []byte {
	header := make([]byte, diskHeaderSize)
	header[0] = op
	binary.LittleEndian.PutUint32(header[1:5], uint32(int32(coord.X)))
	binary.LittleEndian.PutUint32(header[5:9], uint32(int32(coord.Z)))
	binary.LittleEndian.PutUint32(header[9:13], size)
	return header
}

func decodeHeader(header []byte) (byte, ChunkCoord, uint32) {
	coord := ChunkCoord{
		X: int(int32(binary.LittleEndian.Uint32(header[1:5]))),
		Z: int(int32(binary.LittleEndian.Uint32(header[5:9]))),
	}
	return header[0], coord, binary.LittleEndian.Uint32(header[9:13])
}

func (s *diskStore) loadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat chunk store: %w", err)
	}
	end := info.Size()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind chunk store: %w", err)
	}

	header := make([]byte, diskHeaderSize)
	var offset int64
	for {
		if _, err := io.ReadFull(s.file, header); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				return s.dropTornTail(offset, end)
			}
			return fmt.Errorf("read chunk header: %w", err)
		}
		op, coord, size := decodeHeader(header)
		recordOffset := offset
		offset += int64(len(header)) + int64(size)
		if offset > end {
			return s.dropTornTail(recordOffset, end)
		}

		if _, err := s.file.Seek(int64(size), io.SeekCurrent); err != nil {
			return fmt.Errorf("seek past payload: %w", err)
		}
		if op == diskOpSet {
			s.records[coord] = diskRecordMeta{offset: recordOffset, size: size}
		} else {
			delete(s.records, coord)
		}
	}

	return nil
}

// dropTornTail cuts a partially written last record so the next append
// starts on a record boundary.
func (s *diskStore) dropTornTail(offset, end int64) error {
	log.Printf("disk chunk store: dropping %d bytes of torn record at offset %d", end-offset, offset)
	if err := s.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncate torn record: %w", err)
	}
	return nil
}

// appendRecord writes one record at offset, the current end of the log. A
// failed write is rolled back so no torn record stays behind.
func (s *diskStore) appendRecord(offset int64, parts ...[]byte) error {
	for _, part := range parts {
		if _, err := s.file.Write(part); err != nil {
			if terr := s.file.Truncate(offset); terr != nil {
				return fmt.Errorf("write record: %v (rollback: %w)", err, terr)
			}
			return fmt.Errorf("write record: %w", err)
		}
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync chunk store: %w", err)
	}
	return nil
}

func (s *diskStore) Load(coord ChunkCoord) (*ChunkData, bool, error) {
	s.mu.RLock()
	meta, ok := s.records[coord]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	payload := make([]byte, meta.size)
	if _, err := s.file.ReadAt(payload, meta.offset+diskHeaderSize); err != nil {
		return nil, false, fmt.Errorf("read chunk %s payload: %w", coord, err)
	}
	var chunk ChunkData
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&chunk); err != nil {
		return nil, false, fmt.Errorf("decode chunk %s: %w", coord, err)
	}
	if chunk.Objects == nil {
		chunk.Objects = []WorldObject{}
	}
	return &chunk, true, nil
}

func (s *diskStore) Save(chunk *ChunkData) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(chunk); err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	coord := chunk.Coord()
	header := encodeHeader(diskOpSet, coord, uint32(payload.Len()))

	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek store end: %w", err)
	}
	if err := s.appendRecord(offset, header, payload.Bytes()); err != nil {
		return fmt.Errorf("save chunk %s: %w", coord, err)
	}
	s.records[coord] = diskRecordMeta{offset: offset, size: uint32(payload.Len())}
	return nil
}

func (s *diskStore) Delete(coord ChunkCoord) error {
	header := encodeHeader(diskOpDelete, coord, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[coord]; !ok {
		return nil
	}
	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek store end: %w", err)
	}
	if err := s.appendRecord(offset, header); err != nil {
		return fmt.Errorf("delete chunk %s: %w", coord, err)
	}
	delete(s.records, coord)
	return nil
}

func (s *diskStore) ForEach(fn func(chunk *ChunkData) bool) error {
	s.mu.RLock()
	coords := make([]ChunkCoord, 0, len(s.records))
	for coord := range s.records {
		coords = append(coords, coord)
	}
	s.mu.RUnlock()

	sortCoords(coords)
	for _, coord := range coords {
		chunk, ok, err := s.Load(coord)
		if err != nil {
			log.Printf("disk chunk store load %s: %v", coord, err)
			continue
		}
		if !ok {
			continue
		}
		if !fn(chunk) {
			break
		}
	}
	return nil
}

func (s *diskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
