package blockio_test

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/KevoDB/sstblock/pkg/common/keyorder"
	"github.com/KevoDB/sstblock/pkg/common/log"
	"github.com/KevoDB/sstblock/pkg/config"
	"github.com/KevoDB/sstblock/pkg/sstable/block"
	"github.com/KevoDB/sstblock/pkg/sstable/blockio"
	"github.com/KevoDB/sstblock/pkg/sstable/frame"
	"github.com/KevoDB/sstblock/pkg/sstable/index"
)

var _ = Describe("Reader", func() {
	const numEntries = 1000

	var data []byte
	var layout blockio.Layout
	var values map[string][]byte
	var cfg *config.Config
	var subject *blockio.Reader

	BeforeEach(func() {
		var err error
		cfg = smallBlocks()
		data, layout, values, err = seedTable(cfg, numEntries)
		Expect(err).NotTo(HaveOccurred())

		subject, err = blockio.NewReader(bytes.NewReader(data), layout, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.Layout().Entries).To(Equal(numEntries))
		Expect(subject.Layout().Blocks()).To(BeNumerically(">", 50))
		Expect(len(data)).To(Equal(int(layout.IndexOffset + layout.IndexSize)))
	})

	It("should get values", func() {
		for key, want := range values {
			val, ok, err := subject.Get([]byte(key))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue(), "key %q", key)
			Expect(val).To(Equal(want))
		}
	})

	It("should miss absent keys", func() {
		for _, key := range []string{"", "a", "key00001", "key01001", "key99999", "zzz"} {
			_, ok, err := subject.Get([]byte(key))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse(), "key %q", key)
		}
	})

	It("should seek", func() {
		it, err := subject.Seek([]byte("key00001"))
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Valid()).To(BeTrue())
		Expect(it.Key()).To(Equal([]byte("key00002")))

		it, err = subject.Seek([]byte("key99999"))
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Valid()).To(BeFalse())
	})

	It("should seek across block boundaries", func() {
		Expect(layout.Blocks()).To(BeNumerically(">", 2))
		first := layout.Metas[2].FirstKey

		// one byte past the last key of block 1 lands on the first key of block 2
		prev, err := subject.ReadBlock(1, layout.Metas[1])
		Expect(err).NotTo(HaveOccurred())
		target := append(append([]byte{}, prev.LastKey()...), 0)

		it, err := subject.Seek(target)
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Valid()).To(BeTrue())
		Expect(it.Key()).To(Equal(first))
	})

	It("should iterate forwards", func() {
		it := subject.NewIterator()
		n := 0
		for it.SeekToFirst(); it.Valid(); it.Next() {
			Expect(it.Key()).To(Equal(seedKey(n)))
			Expect(it.Value()).To(Equal(values[string(it.Key())]))
			n++
		}
		Expect(it.Error()).NotTo(HaveOccurred())
		Expect(n).To(Equal(numEntries))
	})

	It("should iterate backwards", func() {
		it := subject.NewIterator()
		n := numEntries
		for it.SeekToLast(); it.Valid(); it.Prev() {
			n--
			Expect(it.Key()).To(Equal(seedKey(n)))
		}
		Expect(it.Error()).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("should seek iterators and change direction", func() {
		it := subject.NewIterator()
		Expect(it.Seek([]byte("key00501"))).To(BeTrue())
		Expect(it.Key()).To(Equal([]byte("key00502")))

		Expect(it.Prev()).To(BeTrue())
		Expect(it.Key()).To(Equal([]byte("key00500")))
		Expect(it.Next()).To(BeTrue())
		Expect(it.Next()).To(BeTrue())
		Expect(it.Key()).To(Equal([]byte("key00504")))

		Expect(it.Seek([]byte("key99999"))).To(BeFalse())
		Expect(it.Valid()).To(BeFalse())
	})

	It("should scan ranges", func() {
		var keys []string
		err := subject.Scan([]byte("key00100"), []byte("key00110"), func(key, _ []byte) bool {
			keys = append(keys, string(key))
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"key00100", "key00102", "key00104", "key00106", "key00108"}))
	})

	It("should stop scans early", func() {
		n := 0
		err := subject.Scan(nil, nil, func(_, _ []byte) bool {
			n++
			return n < 7
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(7))
	})

	It("should scan open ranges", func() {
		n := 0
		err := subject.Scan([]byte("key01990"), nil, func(_, _ []byte) bool {
			n++
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
	})

	It("should scan prefixes", func() {
		var keys []string
		err := subject.ScanPrefix([]byte("key001"), func(key, _ []byte) bool {
			keys = append(keys, string(key))
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(HaveLen(50))
		Expect(keys[0]).To(Equal("key00100"))
		Expect(keys[49]).To(Equal("key00198"))

		n := 0
		err = subject.ScanPrefix([]byte("nope"), func(_, _ []byte) bool {
			n++
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("should load layouts from the index section", func() {
		loaded, err := blockio.LoadLayout(bytes.NewReader(data), layout.IndexOffset, layout.IndexSize, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Metas).To(Equal(layout.Metas))
		Expect(loaded.DataSize).To(Equal(layout.DataSize))
		Expect(loaded.Entries).To(Equal(-1))

		reader, err := blockio.NewReader(bytes.NewReader(data), loaded, cfg)
		Expect(err).NotTo(HaveOccurred())
		val, ok, err := reader.Get([]byte("key01000"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(val).To(Equal(values["key01000"]))
	})

	It("should fail on truncated index sections", func() {
		_, err := blockio.ReadIndex(bytes.NewReader(data), layout.IndexOffset, layout.IndexSize+1, cfg)
		Expect(err).To(HaveOccurred())
	})

	It("should detect corrupt blocks", func() {
		corrupt := append([]byte{}, data...)
		off, _, err := index.Extent(layout.Metas, 3, layout.DataSize)
		Expect(err).NotTo(HaveOccurred())
		corrupt[off+5] ^= 0xff

		logs := new(bytes.Buffer)
		reader, err := blockio.NewReader(bytes.NewReader(corrupt), layout, cfg,
			blockio.WithLogger(log.NewStandardLogger(log.WithOutput(logs))))
		Expect(err).NotTo(HaveOccurred())

		_, _, err = reader.Get(layout.Metas[3].FirstKey)
		Expect(err).To(MatchError(frame.ErrChecksumMismatch))
		Expect(logs.String()).To(ContainSubstring("block 3"))

		// other blocks remain readable
		_, ok, err := reader.Get(layout.Metas[4].FirstKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		// scans surface the failure
		err = reader.Scan(nil, nil, func(_, _ []byte) bool { return true })
		Expect(err).To(MatchError(frame.ErrChecksumMismatch))
	})

	It("should detect corrupt index sections", func() {
		corrupt := append([]byte{}, data...)
		corrupt[layout.IndexOffset] ^= 0x01

		_, err := blockio.ReadIndex(bytes.NewReader(corrupt), layout.IndexOffset, layout.IndexSize, cfg)
		Expect(err).To(MatchError(frame.ErrChecksumMismatch))
	})

	Describe("without checksums", func() {
		BeforeEach(func() {
			var err error
			cfg = smallBlocks()
			cfg.Checksum = false
			data, layout, values, err = seedTable(cfg, numEntries)
			Expect(err).NotTo(HaveOccurred())

			subject, err = blockio.NewReader(bytes.NewReader(data), layout, cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round trip", func() {
			size := 0
			for _, m := range layout.Metas {
				size += m.EncodedSize()
			}
			Expect(layout.IndexSize).To(Equal(uint32(size)))
			for key, want := range values {
				val, ok, err := subject.Get([]byte(key))
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(val).To(Equal(want))
			}
		})

		It("should reject structurally broken blocks", func() {
			corrupt := append([]byte{}, data...)
			_, size, err := index.Extent(layout.Metas, 0, layout.DataSize)
			Expect(err).NotTo(HaveOccurred())
			// inflate the entry count of block 0
			binary.LittleEndian.PutUint16(corrupt[size-2:], 0xffff)

			reader, err := blockio.NewReader(bytes.NewReader(corrupt), layout, cfg)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = reader.Get(layout.Metas[0].FirstKey)
			Expect(err).To(MatchError(block.ErrCorruptBlock))
		})
	})

	Describe("with a custom key order", func() {
		It("should round trip integer keys", func() {
			cfg := config.NewDefaultConfig()
			cfg.BlockSize = 128
			cfg.KeyOrder = config.OrderUint64LE

			buf := new(bytes.Buffer)
			w, err := blockio.NewWriter(buf, cfg)
			Expect(err).NotTo(HaveOccurred())
			for i := uint64(0); i < 300; i++ {
				key := binary.LittleEndian.AppendUint64(nil, i*1000)
				Expect(w.Add(key, []byte("v"))).To(Succeed())
			}
			layout, err := w.Finish()
			Expect(err).NotTo(HaveOccurred())
			Expect(index.Validate(layout.Metas, keyorder.Uint64(binary.LittleEndian))).To(Succeed())

			reader, err := blockio.NewReader(bytes.NewReader(buf.Bytes()), layout, cfg)
			Expect(err).NotTo(HaveOccurred())

			it, err := reader.Seek(binary.LittleEndian.AppendUint64(nil, 1500))
			Expect(err).NotTo(HaveOccurred())
			Expect(it.Valid()).To(BeTrue())
			Expect(binary.LittleEndian.Uint64(it.Key())).To(Equal(uint64(2000)))
		})
	})
})
