// Package tlsutil 集中提供加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 供 STT/LLM/TTS 供应商客户端、HTTPS 监听与 Redis 连接共用。
package tlsutil
