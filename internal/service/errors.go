package service

import (
	"errors"
	"net/http"
)

// Kind 拒绝类别，调用方按 Kind/Reason 分支，不要匹配错误文本
type Kind string

const (
	KindInput     Kind = "Input"
	KindOracle    Kind = "Oracle"
	KindIntegrity Kind = "Integrity"
	KindConflict  Kind = "Conflict"
	KindStorage   Kind = "Storage"
	KindNetwork   Kind = "Network"
)

// Reason 稳定的拒绝原因标签
type Reason string

const (
	ReasonInvalidOwnerDomain  Reason = "InvalidOwnerDomain"
	ReasonInvalidPostDomain   Reason = "InvalidPostDomain"
	ReasonInvalidPath         Reason = "InvalidPath"
	ReasonKeyFetchFailed      Reason = "KeyFetchFailed"
	ReasonInvalidPublicKey    Reason = "InvalidPublicKey"
	ReasonMalformedSignature  Reason = "MalformedSignature"
	ReasonContentNotFound     Reason = "ContentNotFound"
	ReasonContentHashMismatch Reason = "ContentHashMismatch"
	ReasonInvalidSignature    Reason = "InvalidSignature"
	ReasonInvalidBlockHash    Reason = "InvalidBlockHash"
	ReasonDuplicate           Reason = "DuplicateSubmission"
	ReasonStorageFailed       Reason = "StorageFailed"
	ReasonPublishFailed       Reason = "PublishFailed"
	// ReasonMalformedPayload 请求体或 gossip 消息无法解析
	ReasonMalformedPayload Reason = "MalformedPayload"
)

var reasonKinds = map[Reason]Kind{
	ReasonInvalidOwnerDomain:  KindInput,
	ReasonInvalidPostDomain:   KindInput,
	ReasonInvalidPath:         KindInput,
	ReasonMalformedSignature:  KindInput,
	ReasonMalformedPayload:    KindInput,
	ReasonKeyFetchFailed:      KindOracle,
	ReasonInvalidPublicKey:    KindOracle,
	ReasonContentNotFound:     KindOracle,
	ReasonInvalidBlockHash:    KindOracle,
	ReasonContentHashMismatch: KindIntegrity,
	ReasonInvalidSignature:    KindIntegrity,
	ReasonDuplicate:           KindConflict,
	ReasonStorageFailed:       KindStorage,
	ReasonPublishFailed:       KindNetwork,
}

var kindStatus = map[Kind]int{
	KindInput:     http.StatusBadRequest,
	KindOracle:    http.StatusFailedDependency,
	KindIntegrity: http.StatusUnprocessableEntity,
	KindConflict:  http.StatusConflict,
	KindStorage:   http.StatusInternalServerError,
	KindNetwork:   http.StatusBadGateway,
}

// Rejection 终态拒绝；Message 面向人，可能变化
type Rejection struct {
	Reason  Reason
	Kind    Kind
	Message string
	Cause   error
}

func (r *Rejection) Error() string {
	if r == nil {
		return "<nil>"
	}
	if r.Cause != nil {
		return string(r.Reason) + ": " + r.Message + ": " + r.Cause.Error()
	}
	return string(r.Reason) + ": " + r.Message
}

func (r *Rejection) Unwrap() error {
	if r == nil {
		return nil
	}
	return r.Cause
}

// Status HTTP 状态码
func (r *Rejection) Status() int {
	if s, ok := kindStatus[r.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func reject(reason Reason, msg string, cause error) *Rejection {
	return &Rejection{Reason: reason, Kind: reasonKinds[reason], Message: msg, Cause: cause}
}

// AsRejection 取出 *Rejection
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if !errors.As(err, &r) {
		return nil, false
	}
	return r, true
}

// ReasonOf 返回拒绝原因，非拒绝错误返回空串
func ReasonOf(err error) Reason {
	if r, ok := AsRejection(err); ok {
		return r.Reason
	}
	return ""
}

// IsKind err 是否为给定类别的拒绝
func IsKind(err error, kind Kind) bool {
	r, ok := AsRejection(err)
	return ok && r.Kind == kind
}
