package entitlements

import (
	"github.com/taskfoxapp/taskfox/app/models"
)

// Feature is a capability tag carried on a product's feature list.
type Feature string

const (
	FeatureBasicTodos        Feature = "basic_todos"
	FeatureBasicSupport      Feature = "basic_support"
	FeatureUnlimitedTodos    Feature = "unlimited_todos"
	FeaturePrioritySupport   Feature = "priority_support"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureExportData        Feature = "export_data"
	FeatureAPIAccess         Feature = "api_access"
)

// FreeTodoLimit is the maximum number of todos a free-tier user may hold.
const FreeTodoLimit = 10

var freeFeatures = map[Feature]struct{}{
	FeatureBasicTodos:   {},
	FeatureBasicSupport: {},
}

var proFeatures = map[Feature]struct{}{
	FeatureUnlimitedTodos:    {},
	FeaturePrioritySupport:   {},
	FeatureAdvancedAnalytics: {},
	FeatureExportData:        {},
	FeatureAPIAccess:         {},
}

// SourceKind names where an entitlement decision draws its feature list from.
type SourceKind int

const (
	// SourceTier falls back to the hardcoded free/pro tier lists.
	SourceTier SourceKind = iota
	// SourceProduct uses the feature list mirrored on a catalog product row.
	SourceProduct
)

// Source is the resolved origin of a feature list. It is computed once per
// check instead of re-branching on a possibly-nil product ad hoc.
type Source struct {
	Kind     SourceKind
	Features []string
}

// Resolve picks the entitlement source for a product row. A nil product or a
// product without a feature list resolves to the hardcoded tier fallback.
func Resolve(product *models.Product) Source {
	if product != nil {
		if features := product.Features(); len(features) > 0 {
			return Source{Kind: SourceProduct, Features: features}
		}
	}
	return Source{Kind: SourceTier}
}

// HasFeature reports whether the subscription/product pair grants a feature.
//
// With a product source, the feature must be on the product's list; pro-tier
// tags additionally require an active subscription. With the tier fallback,
// free tags are always granted and pro tags require an active subscription.
// Tags unknown to both tier lists are never granted.
//
// Pure function: no I/O, identical output for identical input.
func HasFeature(sub *models.Subscription, product *models.Product, feature Feature) bool {
	src := Resolve(product)

	if src.Kind == SourceProduct {
		if !containsFeature(src.Features, feature) {
			return false
		}
		if isPro(feature) {
			return sub.IsActive()
		}
		return true
	}

	if isFree(feature) {
		return true
	}
	if isPro(feature) {
		return sub.IsActive()
	}
	return false
}

// CanCreateTodo reports whether another todo may be created. Users entitled
// to unlimited todos always may; everyone else is capped at FreeTodoLimit.
func CanCreateTodo(sub *models.Subscription, product *models.Product, currentCount int64) bool {
	if HasFeature(sub, product, FeatureUnlimitedTodos) {
		return true
	}
	return currentCount < FreeTodoLimit
}

func isFree(f Feature) bool {
	_, ok := freeFeatures[f]
	return ok
}

func isPro(f Feature) bool {
	_, ok := proFeatures[f]
	return ok
}

func containsFeature(features []string, f Feature) bool {
	for _, v := range features {
		if v == string(f) {
			return true
		}
	}
	return false
}
