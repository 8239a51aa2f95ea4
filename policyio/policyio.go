// Package policyio reads and writes the little-endian binary policy and
// experience-seed files.
//
// Package policyio は、リトルエンディアンのバイナリ形式の方策ファイルと
// 経験シードファイルを読み書きします。
package policyio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/sw965/texplore/mdp"
)

var (
	ErrTruncatedRecord = errors.New("ファイル形式エラー: 末尾のレコードが途中で切れています")
	ErrInvalidHeader   = errors.New("ファイル形式エラー: ヘッダーの値が不正です")
	ErrNonFinite       = errors.New("ファイル形式エラー: 状態ベクトルに NaN または Inf が含まれています")
	ErrSizeMismatch    = errors.New("ファイル形式エラー: レコードの長さがヘッダーと一致しません")
)

type PolicyRecord struct {
	State []float32
	Q     []float32
}

type Policy struct {
	FeatureSize int
	NumActions  int
	Records     []PolicyRecord
}

// Validate は状態ベクトルが有限である事を確かめる。Q値は検査しない。
func (p *Policy) Validate() error {
	for i, r := range p.Records {
		if len(r.State) != p.FeatureSize || len(r.Q) != p.NumActions {
			return fmt.Errorf("%w: record=%d", ErrSizeMismatch, i)
		}
		for _, x := range r.State {
			if math32.IsNaN(x) || math32.IsInf(x, 0) {
				return fmt.Errorf("%w: record=%d", ErrNonFinite, i)
			}
		}
	}
	return nil
}

type encoder struct {
	w   *bufio.Writer
	buf [4]byte
}

func (e *encoder) int32(v int32) error {
	binary.LittleEndian.PutUint32(e.buf[:], uint32(v))
	_, err := e.w.Write(e.buf[:])
	return err
}

func (e *encoder) float32s(xs []float32) error {
	for _, x := range xs {
		binary.LittleEndian.PutUint32(e.buf[:], math32.Float32bits(x))
		if _, err := e.w.Write(e.buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) bool(v bool) error {
	var b byte
	if v {
		b = 1
	}
	return e.w.WriteByte(b)
}

type decoder struct {
	r *bufio.Reader
}

// record は1レコード分のバイト列を読む。1バイトも読めなければ io.EOF を返す。
func (d *decoder) record(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(d.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrTruncatedRecord
	default:
		return nil, err
	}
}

func (d *decoder) header(n int) ([]int32, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	vs := make([]int32, n)
	for i := range vs {
		vs[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
		if vs[i] < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidHeader, vs[i])
		}
	}
	return vs, nil
}

func float32sAt(buf []byte, n int) []float32 {
	xs := make([]float32, n)
	for i := range xs {
		xs[i] = math32.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return xs
}

func WritePolicy(w io.Writer, p Policy) error {
	e := &encoder{w: bufio.NewWriter(w)}
	if err := e.int32(int32(p.FeatureSize)); err != nil {
		return err
	}
	if err := e.int32(int32(p.NumActions)); err != nil {
		return err
	}
	for i, r := range p.Records {
		if len(r.State) != p.FeatureSize || len(r.Q) != p.NumActions {
			return fmt.Errorf("%w: record=%d", ErrSizeMismatch, i)
		}
		if err := e.float32s(r.State); err != nil {
			return err
		}
		if err := e.float32s(r.Q); err != nil {
			return err
		}
	}
	return e.w.Flush()
}

func ReadPolicy(r io.Reader) (Policy, error) {
	d := &decoder{r: bufio.NewReader(r)}
	h, err := d.header(2)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{FeatureSize: int(h[0]), NumActions: int(h[1])}
	size := 4 * (p.FeatureSize + p.NumActions)
	if size == 0 {
		return p, nil
	}
	for {
		buf, err := d.record(size)
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		if err != nil {
			return p, err
		}
		p.Records = append(p.Records, PolicyRecord{
			State: float32sAt(buf, p.FeatureSize),
			Q:     float32sAt(buf[4*p.FeatureSize:], p.NumActions),
		})
	}
}

type SeedRecord struct {
	From     []float32
	To       []float32
	Action   int32
	Reward   float32
	Terminal bool
}

func Float64s(xs []float32) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = float64(x)
	}
	return ys
}

func Float32s(xs []float64) []float32 {
	ys := make([]float32, len(xs))
	for i, x := range xs {
		ys[i] = float32(x)
	}
	return ys
}

func (r SeedRecord) Experience() mdp.Experience {
	return mdp.Experience{
		S:        Float64s(r.From),
		Act:      int(r.Action),
		Next:     Float64s(r.To),
		Reward:   float64(r.Reward),
		Terminal: r.Terminal,
	}
}

func NewSeedRecord(e mdp.Experience) SeedRecord {
	return SeedRecord{
		From:     Float32s(e.S),
		To:       Float32s(e.Next),
		Action:   int32(e.Act),
		Reward:   float32(e.Reward),
		Terminal: e.Terminal,
	}
}

func WriteSeeds(w io.Writer, numFeatures int, records []SeedRecord) error {
	e := &encoder{w: bufio.NewWriter(w)}
	if err := e.int32(int32(numFeatures)); err != nil {
		return err
	}
	for i, r := range records {
		if len(r.From) != numFeatures || len(r.To) != numFeatures {
			return fmt.Errorf("%w: record=%d", ErrSizeMismatch, i)
		}
		if err := e.float32s(r.From); err != nil {
			return err
		}
		if err := e.float32s(r.To); err != nil {
			return err
		}
		if err := e.int32(r.Action); err != nil {
			return err
		}
		if err := e.float32s([]float32{r.Reward}); err != nil {
			return err
		}
		if err := e.bool(r.Terminal); err != nil {
			return err
		}
	}
	return e.w.Flush()
}

func ReadSeeds(r io.Reader) (int, []SeedRecord, error) {
	d := &decoder{r: bufio.NewReader(r)}
	h, err := d.header(1)
	if err != nil {
		return 0, nil, err
	}
	n := int(h[0])
	// from, to, action, reward, terminal
	size := 4*(2*n) + 4 + 4 + 1
	var records []SeedRecord
	for {
		buf, err := d.record(size)
		if errors.Is(err, io.EOF) {
			return n, records, nil
		}
		if err != nil {
			return n, records, err
		}
		off := 4 * 2 * n
		records = append(records, SeedRecord{
			From:     float32sAt(buf, n),
			To:       float32sAt(buf[4*n:], n),
			Action:   int32(binary.LittleEndian.Uint32(buf[off:])),
			Reward:   math32.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:])),
			Terminal: buf[off+8] != 0,
		})
	}
}
