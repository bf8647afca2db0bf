package blockio_test

import (
	"bytes"
	"io"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/KevoDB/sstblock/pkg/common/log"
	"github.com/KevoDB/sstblock/pkg/config"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
	"github.com/KevoDB/sstblock/pkg/sstable/blockio"
	"github.com/KevoDB/sstblock/pkg/sstable/frame"
	"github.com/KevoDB/sstblock/pkg/sstable/index"
)

var errBroken = errors.New("disk on fire")

// brokenWriter accepts limit bytes of every Write, then fails
type brokenWriter struct {
	limit int
	err   error
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if len(p) <= w.limit {
		return len(p), nil
	}
	return w.limit, w.err
}

var _ = Describe("Writer", func() {
	var buf *bytes.Buffer
	var cfg *config.Config
	var subject *blockio.Writer

	BeforeEach(func() {
		var err error
		buf = new(bytes.Buffer)
		cfg = config.NewDefaultConfig()
		cfg.BlockSize = 64
		subject, err = blockio.NewWriter(buf, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should write empty", func() {
		layout, err := subject.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Blocks()).To(Equal(0))
		Expect(layout.IndexOffset).To(Equal(uint32(0)))
		Expect(layout.IndexSize).To(Equal(uint32(frame.Overhead)))
		Expect(buf.Len()).To(Equal(frame.Overhead))
	})

	It("should reject invalid configs", func() {
		cfg.BlockSize = 1
		_, err := blockio.NewWriter(buf, cfg)
		Expect(err).To(MatchError(config.ErrInvalidConfig))
	})

	It("should prevent out-of-order appends", func() {
		Expect(subject.Add([]byte("key20"), []byte("value"))).To(Succeed())
		Expect(subject.Add([]byte("key19"), []byte("value"))).To(MatchError(block.ErrOrderViolation))
		Expect(subject.Add([]byte("key20"), []byte("value"))).To(MatchError(block.ErrOrderViolation))
		Expect(subject.Add([]byte("key22"), []byte("value"))).To(Succeed())
	})

	It("should prevent out-of-order appends across blocks", func() {
		Expect(subject.Add([]byte("key10"), bytes.Repeat([]byte("x"), 40))).To(Succeed())
		Expect(subject.Add([]byte("key20"), bytes.Repeat([]byte("x"), 40))).To(Succeed())

		Expect(subject.Add([]byte("key15"), bytes.Repeat([]byte("x"), 40))).To(MatchError(block.ErrOrderViolation))
		Expect(subject.Add([]byte("key21"), bytes.Repeat([]byte("x"), 40))).To(Succeed())

		layout, err := subject.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Blocks()).To(Equal(3))
		Expect(layout.Entries).To(Equal(3))
	})

	It("should reject empty keys", func() {
		Expect(subject.Add(nil, []byte("value"))).To(MatchError(block.ErrEmptyKey))
	})

	It("should split entries into budgeted blocks", func() {
		for i := 0; i < 100; i++ {
			Expect(subject.Add(seedKey(i), []byte("0123456789"))).To(Succeed())
		}
		layout, err := subject.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Entries).To(Equal(100))
		Expect(layout.Blocks()).To(BeNumerically(">", 10))
		Expect(int(layout.IndexOffset + layout.IndexSize)).To(Equal(buf.Len()))
		Expect(index.Validate(layout.Metas, nil)).To(Succeed())

		total := 0
		for i := range layout.Metas {
			off, size, err := index.Extent(layout.Metas, i, layout.DataSize)
			Expect(err).NotTo(HaveOccurred())
			Expect(int(size)).To(BeNumerically("<=", cfg.BlockSize+frame.Overhead))

			payload, err := frame.Open(buf.Bytes()[off : off+size])
			Expect(err).NotTo(HaveOccurred())
			blk, err := block.Decode(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(blk.FirstKey()).To(Equal(layout.Metas[i].FirstKey))
			total += blk.Len()
		}
		Expect(total).To(Equal(100))
	})

	It("should admit oversized entries in their own block", func() {
		big := bytes.Repeat([]byte("v"), 500)
		Expect(subject.Add([]byte("a"), []byte("small"))).To(Succeed())
		Expect(subject.Add([]byte("b"), big)).To(Succeed())
		Expect(subject.Add([]byte("c"), []byte("small"))).To(Succeed())

		layout, err := subject.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Blocks()).To(Equal(3))
	})

	It("should refuse use after finish", func() {
		_, err := subject.Finish()
		Expect(err).NotTo(HaveOccurred())

		Expect(subject.Add([]byte("key"), nil)).To(MatchError(blockio.ErrClosed))
		_, err = subject.Finish()
		Expect(err).To(MatchError(blockio.ErrClosed))
	})

	It("should log flushed blocks", func() {
		logs := new(bytes.Buffer)
		logger := log.NewStandardLogger(log.WithOutput(logs), log.WithLevel(log.LevelDebug))

		w, err := blockio.NewWriter(buf, cfg, blockio.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 10; i++ {
			Expect(w.Add(seedKey(i), []byte("0123456789"))).To(Succeed())
		}
		_, err = w.Finish()
		Expect(err).NotTo(HaveOccurred())

		Expect(logs.String()).To(ContainSubstring("component=blockio.writer wrote block 0"))
		Expect(logs.String()).To(ContainSubstring("finished 10 entries"))
	})

	It("should not index blocks that failed to write", func() {
		w, err := blockio.NewWriter(&brokenWriter{err: errBroken}, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(w.Add([]byte("key10"), bytes.Repeat([]byte("x"), 40))).To(Succeed())
		Expect(w.Add([]byte("key20"), bytes.Repeat([]byte("x"), 40))).To(MatchError(errBroken))
		Expect(w.Blocks()).To(Equal(0))

		// the failure sticks
		Expect(w.Add([]byte("key30"), []byte("v"))).To(MatchError(errBroken))
		_, err = w.Finish()
		Expect(err).To(MatchError(errBroken))
	})

	It("should report short writes", func() {
		w, err := blockio.NewWriter(&brokenWriter{limit: 10}, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(w.Add([]byte("key10"), bytes.Repeat([]byte("x"), 40))).To(Succeed())
		_, err = w.Finish()
		Expect(err).To(MatchError(io.ErrShortWrite))
	})

	It("should keep unordered blocks when order checks are off", func() {
		cfg.VerifyKeyOrder = false
		w, err := blockio.NewWriter(buf, cfg)
		Expect(err).NotTo(HaveOccurred())

		for _, key := range []string{"key10", "key20", "key15", "key05"} {
			Expect(w.Add([]byte(key), bytes.Repeat([]byte("x"), 40))).To(Succeed())
		}
		layout, err := w.Finish()
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Blocks()).To(Equal(4))
		Expect(layout.Entries).To(Equal(4))

		loaded, err := blockio.LoadLayout(bytes.NewReader(buf.Bytes()), layout.IndexOffset, layout.IndexSize, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Metas).To(Equal(layout.Metas))

		_, err = blockio.LoadLayout(bytes.NewReader(buf.Bytes()), layout.IndexOffset, layout.IndexSize, nil)
		Expect(err).To(MatchError(index.ErrIndexOrder))
	})

	It("should reuse buffers when sealing blocks", func() {
		allocsPerAdd := func(checksum bool) float64 {
			cfg := config.NewDefaultConfig()
			cfg.BlockSize = 64
			cfg.Checksum = checksum
			w, err := blockio.NewWriter(io.Discard, cfg, blockio.WithLogger(log.Discard()))
			Expect(err).NotTo(HaveOccurred())

			value := bytes.Repeat([]byte("x"), 40)
			i := 0
			for ; i < 3; i++ {
				Expect(w.Add(seedKey(i), value)).To(Succeed())
			}
			return testing.AllocsPerRun(200, func() {
				i++
				// every pair fills a block, so each Add flushes the previous one
				Expect(w.Add(seedKey(i), value)).To(Succeed())
			})
		}

		Expect(allocsPerAdd(true)).To(BeNumerically("<=", allocsPerAdd(false)))
	})
})
