/*
Package main 提供 AgentScope Runtime 服务端程序入口。

# 概述

cmd/agentscope 是运行时的可执行入口，将宿主 Agent 暴露为 HTTP 服务，
并提供后台进程管理、健康检查和版本查询等子命令。程序支持 YAML 配置
文件加载、结构化日志（zap）、Prometheus 指标采集和 OpenTelemetry 追踪。

# 核心类型

  - Server — 主服务器，组装会话/记忆服务、任务队列、执行引擎与
    HTTP / Metrics 双端口，并负责优雅关闭

# 主要能力

  - 子命令：serve（前台启动）、start/stop/status（后台进程管理）、
    health、version
  - 服务装配：会话历史（in_memory/redis/sql）、长期记忆
    （in_memory/redis/mongo）、任务队列（memory/redis）按配置选择后端
  - 协议适配：OpenAI Responses 兼容端点与 A2A JSON-RPC 端点挂载到
    主路由
  - 优雅关闭：信号或 admin 端点触发 → 关闭 HTTP → 关闭 Metrics →
    停止服务 → 关闭遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
