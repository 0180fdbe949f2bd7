package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordRuleFailedEvent emits a span event for a failed rule result
func RecordRuleFailedEvent(
	span trace.Span,
	catalog string,
	ruleID string,
	severity string,
	blocking bool,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("compliance.rule.failed", trace.WithAttributes(
		attribute.String("event.type", "compliance.rule.failed"),
		attribute.String("catalog", catalog),
		attribute.String("rule.id", ruleID),
		attribute.String("severity", severity),
		attribute.Bool("blocking", blocking),
		attribute.String("message", message),
	))
}

// RecordChainViolationEvent emits a span event for a tampered chain
func RecordChainViolationEvent(
	span trace.Span,
	tripID string,
	key string,
	reason string,
) {
	if span == nil {
		return
	}

	span.AddEvent("compliance.chain.violation", trace.WithAttributes(
		attribute.String("event.type", "compliance.chain.violation"),
		attribute.String("trip.id", tripID),
		attribute.String("snapshot.key", key),
		attribute.String("reason", reason),
	))
}

// RecordEscalationEvent emits a span event for an escalated request
func RecordEscalationEvent(
	span trace.Span,
	requestID string,
	fromLevel string,
	toLevel string,
) {
	if span == nil {
		return
	}

	span.AddEvent("compliance.exception.escalated", trace.WithAttributes(
		attribute.String("event.type", "compliance.exception.escalated"),
		attribute.String("request.id", requestID),
		attribute.String("from.level", fromLevel),
		attribute.String("to.level", toLevel),
	))
}

// RecordDecisionEvent emits a span event for an approver decision
func RecordDecisionEvent(
	span trace.Span,
	requestID string,
	approverID string,
	outcome string,
	notes string,
) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "compliance.exception.decided"),
		attribute.String("request.id", requestID),
		attribute.String("approver.id", approverID),
		attribute.String("outcome", outcome),
	}
	if notes != "" {
		attrs = append(attrs, attribute.String("notes", notes))
	}

	span.AddEvent("compliance.exception.decided", trace.WithAttributes(attrs...))
}
