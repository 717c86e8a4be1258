package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid      = errors.New("参数错误")
	ErrThreadNotFound    = errors.New("会话不存在")
	ErrNotParticipant    = errors.New("不是会话成员")
	ErrNotDirectThread   = errors.New("仅单聊会话支持已读回执")
	ErrNoSentMessage     = errors.New("尚未发送过消息")
	ErrCollabUnavailable = errors.New("协作方接口不可用")
	UnauthorizedError    = errors.New("权限不足")
	UnExpectedError      = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:      BadRequest,
	ErrThreadNotFound:    NotFound,
	ErrNotParticipant:    Unauthorized,
	ErrNotDirectThread:   BadRequest,
	ErrNoSentMessage:     NotFound,
	ErrCollabUnavailable: InternalServerError,
	UnauthorizedError:    Unauthorized,
	UnExpectedError:      InternalServerError,
}
