/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、Agent 执行、会话存储与任务队列四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - Agent 指标：执行总数、执行耗时、流式事件计数、在途流 Gauge，
    按 agent/status 分组。
  - 会话存储指标：操作总数与耗时，按 backend/operation 分组。
  - 任务队列指标：任务终态计数、任务耗时、队列深度 Gauge，
    按任务名分组。
*/
package metrics
