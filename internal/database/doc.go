// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 database 负责打开 sql 会话后端使用的 GORM 连接，并管理其连接池。

# 概述

Open 按 database.driver 选择方言（postgres、mysql，或纯 Go 实现的
glebarez/sqlite），PoolManager 在其上统一配置连接池、后台探活，
并把打开/空闲连接数上报给 metrics.Collector。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping（readyz）、
    ReportStats、WithTransaction、WithTransactionRetry、Close。
  - PoolConfig：连接池参数，可由 PoolConfigFromDatabase 从配置派生。
  - StatsRecorder：连接数指标接收方。

session.SQLPersister 通过 WithTransactionRetry 执行整表替换，
死锁、序列化失败与 SQLITE_BUSY 会按指数退避重试。
*/
package database
