package main

import (
	"log"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/app/repository"
	"github.com/taskfoxapp/taskfox/internal/pkg/database"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
)

// Seeds the local plan catalog. Stripe price ids come from the environment so
// dev, staging and production can point at different Stripe accounts.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())

	products := repository.GetGlobalRepositories().Product

	free := &models.Product{
		StripePriceID:   env.GetEnv("STRIPE_PRICE_FREE", "price_free"),
		StripeProductID: env.GetEnv("STRIPE_PRODUCT_FREE", "prod_free"),
		Name:            "Free",
		Description:     "Get organized with the basics",
		Price:           0,
		Interval:        models.ProductIntervalMonth,
		Active:          true,
	}
	if err := free.SetFeatures([]string{"basic_todos", "basic_support"}); err != nil {
		log.Fatalf("failed to encode free features: %v", err)
	}

	pro := &models.Product{
		StripePriceID:   env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", "price_pro_monthly"),
		StripeProductID: env.GetEnv("STRIPE_PRODUCT_PRO", "prod_pro"),
		Name:            "Pro",
		Description:     "Unlimited todos and priority support",
		Price:           1999,
		Interval:        models.ProductIntervalMonth,
		Active:          true,
	}
	if err := pro.SetFeatures([]string{
		"unlimited_todos",
		"priority_support",
		"advanced_analytics",
		"export_data",
		"api_access",
	}); err != nil {
		log.Fatalf("failed to encode pro features: %v", err)
	}

	proYearly := &models.Product{
		StripePriceID:   env.GetEnv("STRIPE_PRICE_PRO_YEARLY", "price_pro_yearly"),
		StripeProductID: env.GetEnv("STRIPE_PRODUCT_PRO", "prod_pro"),
		Name:            "Pro",
		Description:     "Unlimited todos and priority support, two months free",
		Price:           19990,
		Interval:        models.ProductIntervalYear,
		Active:          true,
	}
	if err := proYearly.SetFeatures([]string{
		"unlimited_todos",
		"priority_support",
		"advanced_analytics",
		"export_data",
		"api_access",
	}); err != nil {
		log.Fatalf("failed to encode pro yearly features: %v", err)
	}

	for _, p := range []*models.Product{free, pro, proYearly} {
		if err := products.Upsert(p); err != nil {
			log.Fatalf("failed to seed product %s: %v", p.Name, err)
		}
		log.Printf("Seeded product %s (%s)", p.Name, p.StripePriceID)
	}
}
