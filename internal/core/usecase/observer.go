package usecase

import "github.com/kirillkom/medical-doc-assistant/internal/core/domain"

type noopObserver struct{}

func (noopObserver) ObserveClassification(domain.ClassificationMethod, domain.CategoryCode) {}
func (noopObserver) ObserveAnalysis(domain.CategoryCode, int, bool)                         {}
func (noopObserver) ObserveSummaryFallback()                                                {}
func (noopObserver) ObservePersistFailure()                                                 {}
