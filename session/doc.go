// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 session 提供按租户隔离、受保留期约束的音频会话存储。

# 概述

Store 在内存中持有全部存活会话，并在每次变更后通过 Persister
将整个集合写入持久化后端。读写操作前会先内联清理过期会话，
过期会话在任何读取中都不会被返回。

# 核心类型

  - Session：一次音频请求的审计记录，包含租户 ID（凭证哈希）、
    保留期、用量与经过白名单过滤的元数据。
  - Store：唯一拥有会话生命周期的组件（插入、查询、清理、序列化）。
    单个互斥锁同时保护内存集合与持久化写入。
  - Persister：持久化后端接口。JSONFilePersister 将整个数组写入
    临时文件后原子重命名；SQLPersister 基于 gorm 在单个事务中替换全集。

# 保留期

保留天数限制在 [0, 30]。只要开启转写文本或回复文本的持久化，
保留期即缩短为最多 1 天。保留期为 0 等价于不存储。

# 租户隔离

所有读取都要求已认证的租户 ID，缺失时返回 ErrAccessDenied；
ListByTenant 在过滤租户与认证租户不一致时同样返回 ErrAccessDenied。
*/
package session
