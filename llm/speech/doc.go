// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 speech 提供语音识别 (STT) 与语音合成 (TTS) 的供应商接入层。

# 核心接口

  - STTProvider：Transcribe 返回固定结构 STTResponse（文本、供应商、延迟、输入时长）。
  - TTSProvider：Synthesize 返回固定结构 TTSResponse（音频、MIME、URL、延迟、输出时长）。

# 实现

  - OpenAISTTProvider（Whisper）、DeepgramProvider：STT。
  - OpenAITTSProvider、ElevenLabsProvider：TTS。
  - StubSTTProvider / StubTTSProvider：无网络的固定结果，用于开发与降级。
  - STTFallback / TTSFallback：主供应商失败或熔断时调用备用供应商，
    结果的 Provider 标记为 "<primary>|<secondary>"。

NewSTTFromConfig / NewTTSFromConfig 根据 config.ProvidersConfig 组装上述实现。
*/
package speech
