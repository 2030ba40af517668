// Package store 是基础设施层：core 中存储接口的各个实现。
//
// 画像向量（KV）：
//
//	var kv core.KVStore = NewMemoryStore() // 或 NewRedisStore / NewBadgerStore
//	var profiles core.ProfileStore = NewKVProfileStore(kv, "", WithProfileTTL(72*time.Hour))
//
// 语料与交互：
//
//	corpus := NewMemoryCorpus()                   // 或 LoadFixtures(r)
//	sqlite, _ := OpenSQLite(ctx, "persona.db")    // 同时实现所有协作方接口
//	mongo, _ := OpenMongo(ctx, MongoOptions{...}) // 文档库，字段别名在适配层归一化
//
// 所有实现都在启动时构造、关闭时 Close，不使用包级全局连接。
package store

import "github.com/rushteam/persona/core"

// Backend 是语料后端（MemoryCorpus / SQLiteStore / MongoStore）共同实现的协作方接口
type Backend interface {
	core.CorpusReader
	core.InteractionReader
	core.EngagementReader
	core.SocialGraph
	core.UserLister
	core.UserDirectory
	core.SearchRecorder
	core.ArticleWriter

	Name() string
	Close() error
}

var (
	_ Backend = (*MemoryCorpus)(nil)
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*MongoStore)(nil)
)
