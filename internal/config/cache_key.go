package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding a user's single active login token
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// ExamPayloadKey returns the cache key for an exam's metadata
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamQuestionsKey returns the cache key for an exam's ordered questions
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// AttemptedKey returns the marker key set once a user's result is stored
func (r *CacheKeyStruct) AttemptedKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:attempted", userID, examID)
}

// ActiveSessionKey returns the key guarding a user's single live session for an exam
func (r *CacheKeyStruct) ActiveSessionKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:active_session", userID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
