package dht

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
)

// ============================================================================
//                              序号校验器
// ============================================================================

// 校验错误
var (
	errEmptyValue    = errors.New("empty value")
	errValueTooLarge = errors.New("value too large")
	errBadSequence   = errors.New("malformed sequence metadata")
	errKeyMismatch   = errors.New("record key does not match")
	errNoNamespace   = errors.New("key has no namespace")
)

// EncodeSequence 把序号编码为记录元数据
func EncodeSequence(seq uint64) []byte {
	return varint.ToUvarint(seq)
}

// RecordSequence 解析记录序号，元数据为空时序号为 0
func RecordSequence(rec *pb.Record) (uint64, error) {
	if len(rec.Metadata) == 0 {
		return 0, nil
	}
	seq, n, err := varint.FromUvarint(rec.Metadata)
	if err != nil || n != len(rec.Metadata) {
		return 0, errBadSequence
	}
	return seq, nil
}

// SequenceValidator 默认记录校验器
//
// 元数据是 uvarint 编码的序号。值必须非空且不超过 MaxValueSize。
// Select 优先序号更大的记录，序号相同取字节序更大的值，完全相同保留 a。
type SequenceValidator struct {
	// MaxValueSize 值的最大字节数，0 表示不限制
	MaxValueSize int
}

// NewSequenceValidator 创建序号校验器
func NewSequenceValidator(maxValueSize int) *SequenceValidator {
	return &SequenceValidator{MaxValueSize: maxValueSize}
}

// Validate 实现 interfaces.Validator
func (v *SequenceValidator) Validate(key []byte, rec *pb.Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if len(rec.Key) > 0 && !bytes.Equal(rec.Key, key) {
		return errKeyMismatch
	}
	if len(rec.Value) == 0 {
		return errEmptyValue
	}
	if v.MaxValueSize > 0 && len(rec.Value) > v.MaxValueSize {
		return fmt.Errorf("%w: %d > %d bytes", errValueTooLarge, len(rec.Value), v.MaxValueSize)
	}
	_, err := RecordSequence(rec)
	return err
}

// Select 实现 interfaces.Selector
func (v *SequenceValidator) Select(_ []byte, a, b *pb.Record) *pb.Record {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	seqA, _ := RecordSequence(a)
	seqB, _ := RecordSequence(b)
	if seqA != seqB {
		if seqB > seqA {
			return b
		}
		return a
	}
	if bytes.Compare(b.Value, a.Value) > 0 {
		return b
	}
	return a
}

// ============================================================================
//                              命名空间校验器
// ============================================================================

// NamespacedValidator 按键的命名空间分派校验器
//
// 键格式为 /<namespace>/<rest>。未注册的命名空间被拒绝；
// 设置了 Default 时，没有命名空间的键交给 Default。
type NamespacedValidator struct {
	validators map[string]interfaces.Validator

	// Default 无命名空间键的校验器，可以为 nil
	Default interfaces.Validator
}

// NewNamespacedValidator 创建命名空间校验器
func NewNamespacedValidator() *NamespacedValidator {
	return &NamespacedValidator{
		validators: make(map[string]interfaces.Validator),
	}
}

// Register 注册命名空间校验器
func (nv *NamespacedValidator) Register(namespace string, v interfaces.Validator) {
	nv.validators[namespace] = v
}

func (nv *NamespacedValidator) lookup(key []byte) (interfaces.Validator, error) {
	ns, ok := splitNamespace(key)
	if !ok {
		if nv.Default != nil {
			return nv.Default, nil
		}
		return nil, errNoNamespace
	}
	v, ok := nv.validators[ns]
	if !ok {
		return nil, fmt.Errorf("unknown namespace %q", ns)
	}
	return v, nil
}

// Validate 实现 interfaces.Validator
func (nv *NamespacedValidator) Validate(key []byte, rec *pb.Record) error {
	v, err := nv.lookup(key)
	if err != nil {
		return err
	}
	return v.Validate(key, rec)
}

// Select 实现 interfaces.Selector
//
// 命名空间校验器未实现 Selector 时保留 a。
func (nv *NamespacedValidator) Select(key []byte, a, b *pb.Record) *pb.Record {
	v, err := nv.lookup(key)
	if err != nil {
		return a
	}
	if s, ok := v.(interfaces.Selector); ok {
		return s.Select(key, a, b)
	}
	return a
}

// splitNamespace 取出 /<namespace>/... 中的 namespace
func splitNamespace(key []byte) (string, bool) {
	s := string(key)
	if !strings.HasPrefix(s, "/") {
		return "", false
	}
	ns, _, ok := strings.Cut(s[1:], "/")
	if !ok || ns == "" {
		return "", false
	}
	return ns, true
}

var (
	_ interfaces.Validator = (*SequenceValidator)(nil)
	_ interfaces.Selector  = (*SequenceValidator)(nil)
	_ interfaces.Validator = (*NamespacedValidator)(nil)
	_ interfaces.Selector  = (*NamespacedValidator)(nil)
)
