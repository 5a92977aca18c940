// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 VoiceFlow 的 HTTP 监听生命周期。

主服务（/audio、/healthz 等）与 metrics 服务各由一个 Manager 持有：
Start 非阻塞监听，Shutdown 在 ShutdownTimeout 内排空请求，
Errors 暴露后台 Serve 的失败。配置了证书与私钥时以 HTTPS 监听，
TLS 参数来自 tlsutil.ServerTLSConfig。
*/
package server
