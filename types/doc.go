/*
Package types 提供运行时全局共享的类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 engine、services、adapters、
taskqueue 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - Message / Content     — 对话消息与消息分片（支持 delta 流式分片）
  - FunctionCall / Output — 工具调用请求与结果
  - AgentRequest          — 会话处理请求（input + session_id + tools）
  - AgentResponse         — 响应对象（created → in_progress → completed/failed）
  - Event                 — 流式事件接口（Message 与 AgentResponse 均实现）
  - Session               — 会话历史实体
  - Tool / FunctionSchema — 工具定义（JSON Schema parameters）
  - Error / ErrorCode     — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithUserID / WithSessionID / WithRequestID
  - 错误工具链：NewError / WithCause / IsErrorCode / IsRetryable
  - 消息构造：NewTextMessage / TextDelta / Completed / GetFunctionCall
*/
package types
