// Package config 提供 VoiceFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（VOICEFLOW_<SECTION>_<FIELD>）的顺序加载。
// session 段的字段为宽松解析，非法值保留默认值而不是使启动失败。
package config
