package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when an IPC stream or file holds no record batch.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCWriter writes Arrow records to IPC streams and files.
type IPCWriter struct {
	allocator memory.Allocator
}

// NewIPCWriter creates a new IPCWriter.
func NewIPCWriter() *IPCWriter {
	return &IPCWriter{
		allocator: memory.DefaultAllocator,
	}
}

// SerializeToIPC serializes an Arrow Record to IPC stream bytes.
func (w *IPCWriter) SerializeToIPC(record arrow.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	return w.SerializeMultipleToIPC([]arrow.Record{record})
}

// DeserializeFromIPC deserializes the first record of an IPC stream. The
// caller must Release the returned record.
func (w *IPCWriter) DeserializeFromIPC(data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, ErrNoRecords
	}

	record := reader.Record()
	record.Retain() // the reader releases its reference on Release
	return record, nil
}

// SerializeMultipleToIPC serializes records sharing one schema into a single
// IPC stream.
func (w *IPCWriter) SerializeMultipleToIPC(records []arrow.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to serialize")
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(w.allocator))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// DeserializeAllFromIPC deserializes every record of an IPC stream.
func (w *IPCWriter) DeserializeAllFromIPC(data []byte) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		for _, r := range records {
			r.Release()
		}
		return nil, reader.Err()
	}

	return records, nil
}

// WriteFile writes record to path in the Arrow IPC file format, replacing
// any existing file.
func (w *IPCWriter) WriteFile(path string, record arrow.Record) error {
	if record == nil {
		return errors.New("record is nil")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	writer, err := ipc.NewFileWriter(f, ipc.WithSchema(record.Schema()), ipc.WithAllocator(w.allocator))
	if err != nil {
		return fmt.Errorf("failed to create file writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	return f.Close()
}

// ReadFile reads every record of an Arrow IPC file. The caller must Release
// the returned records.
func (w *IPCWriter) ReadFile(path string) ([]arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := ipc.NewFileReader(f, ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create file reader: %w", err)
	}
	defer reader.Close()

	records := make([]arrow.Record, 0, reader.NumRecords())
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			for _, r := range records {
				r.Release()
			}
			return nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		record.Retain()
		records = append(records, record)
	}
	return records, nil
}
