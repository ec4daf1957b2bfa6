package car

// Sample is a demo car with a fixed id
type Sample struct {
	ID  string
	Car CarAdded
}

// SampleCars returns the demo fleet
func SampleCars() []Sample {
	return []Sample{
		{ID: "car-1", Car: CarAdded{
			Make: "Toyota", Model: "Corolla", Year: 2023, CarType: "compact", Transmission: "automatic",
			DailyRate: 180, Location: "Tel Aviv", FuelType: "gasoline", Seats: 5,
		}},
		{ID: "car-2", Car: CarAdded{
			Make: "Honda", Model: "Civic", Year: 2022, CarType: "compact", Transmission: "manual",
			DailyRate: 160, Location: "Haifa", FuelType: "gasoline", Seats: 5,
		}},
		{ID: "car-3", Car: CarAdded{
			Make: "BMW", Model: "X3", Year: 2024, CarType: "suv", Transmission: "automatic",
			DailyRate: 450, Location: "Jerusalem", FuelType: "hybrid", Seats: 7,
		}},
		{ID: "car-4", Car: CarAdded{
			Make: "Mercedes", Model: "C-Class", Year: 2023, CarType: "luxury", Transmission: "automatic",
			DailyRate: 380, Location: "Tel Aviv", FuelType: "gasoline", Seats: 5,
		}},
	}
}
