// Package identity はゲスト識別子とアイデンティティスコープの管理を提供する。
//
// ゲストキーは認証なし参加者のデバイス単位の擬似識別子で、
// サーバーにとっては書き込み専用の相関ヒントに過ぎない。
// ゲストの同一性判定はProfileID（セッションID+正規化名）で行う。
package identity

import (
	"strings"
	"sync"
)

// Store はデバイスローカル状態のキーバリュー抽象。
// HTTPハンドラー層ではCookieを、テストではMemoryStoreを背後に使う。
type Store interface {
	// Get はキーに対応する値を返す。存在しない場合はfalseを返す。
	Get(key string) (string, bool)
	// Set はキーに値を保存する。
	Set(key, value string)
	// Delete はキーを削除する。
	Delete(key string)
	// Keys は保存されている全キーを返す。プレフィックス走査に使う。
	Keys() []string
}

// MemoryStore はテストおよびプロセス内利用向けのインメモリStore実装。
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get はキーに対応する値を返す。
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set はキーに値を保存する。
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete はキーを削除する。
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys は保存されている全キーを返す。
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// DeleteByPrefix は指定プレフィックスを持つ全キーをStoreから削除する。
func DeleteByPrefix(store Store, prefix string) {
	for _, k := range store.Keys() {
		if strings.HasPrefix(k, prefix) {
			store.Delete(k)
		}
	}
}
