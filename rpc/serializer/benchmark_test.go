package serializer

import (
	"fmt"
	"testing"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// benchmarkRequests returns a set of requests for targeted benchmarking
func benchmarkRequests() map[string]common.Request {
	manyKeys := make([][]byte, 1000)
	manyPairs := make([]db.KeyValue, 1000)
	for i := range manyKeys {
		manyKeys[i] = []byte(fmt.Sprintf("key-%06d", i))
		manyPairs[i] = db.KeyValue{Key: manyKeys[i], Value: make([]byte, 128)}
	}
	return map[string]common.Request{
		"ReadSingle":   common.NewReadRequest(0, []byte("k")),
		"ReadMany":     common.NewReadRequest(0, manyKeys...),
		"PutSmall":     common.NewPutRequest(0, 0, db.KeyValue{Key: []byte("key"), Value: []byte("v")}),
		"PutLarge":     common.NewPutRequest(0, 0, db.KeyValue{Key: []byte("key"), Value: make([]byte, 16*1024)}),
		"PutMany":      common.NewPutRequest(0, common.FlagPartSync, manyPairs...),
		"Scan":         common.NewScanRequest(0, []byte("a"), []byte("z"), 1000),
		"TableOpen":    common.NewTableOpenRequest(0, db.DefaultTableConfig()),
		"DeleteRanged": common.NewDeleteRangeRequest(0, 0, []byte("a"), []byte("b")),
	}
}

func BenchmarkEncodeRequest(b *testing.B) {
	s := NewFrameSerializer()
	for name, req := range benchmarkRequests() {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = s.EncodeRequest(req)
			}
		})
	}
}

func BenchmarkDecodeRequest(b *testing.B) {
	s := NewFrameSerializer()
	for name, req := range benchmarkRequests() {
		frames := s.EncodeRequest(req)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := s.DecodeRequest(frames); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
